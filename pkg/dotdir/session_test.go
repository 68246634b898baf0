package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

var _ = Describe("Session state", func() {
	var (
		dir string
		m   *dotdir.Manager
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	It("returns nil when nothing was saved", func() {
		state, err := m.LoadSession(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("round trips the conversation id", func() {
		Expect(m.SaveSession(&dotdir.SessionState{ConversationID: "abc"}, dir)).To(Succeed())

		state, err := m.LoadSession(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ConversationID).To(Equal("abc"))
		Expect(state.UpdatedAt.IsZero()).To(BeFalse())
	})

	It("rejects a nil state", func() {
		Expect(m.SaveSession(nil, dir)).To(HaveOccurred())
	})

	It("reports malformed session files", func() {
		Expect(os.WriteFile(filepath.Join(dir, "session.json"), []byte("{"), 0o600)).To(Succeed())
		_, err := m.LoadSession(dir)
		Expect(err).To(MatchError(ContainSubstring("parsing session state")))
	})

	It("clears the session and tolerates clearing twice", func() {
		Expect(m.SaveSession(&dotdir.SessionState{ConversationID: "abc"}, dir)).To(Succeed())
		Expect(m.ClearSession(dir)).To(Succeed())
		Expect(m.ClearSession(dir)).To(Succeed())

		state, err := m.LoadSession(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})
})
