package historycmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	historycmder "github.com/papercomputeco/parley/cmd/parley/history"
)

const storedRecord = `{
  "conversations": [
    {"Human": "My name is Zhang San", "AI": "Nice to meet you, Zhang San."},
    {"Human": "What is my name?", "AI": "Your name is Zhang San."}
  ]
}`

var _ = Describe("History command", func() {
	var tmpDir string

	newCmd := func(args ...string) (*cobra.Command, *bytes.Buffer) {
		cmd := historycmder.NewHistoryCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")
		cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs(append(args, "--config-dir", tmpDir, "--storage", "file"))
		return cmd, out
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		dir := filepath.Join(tmpDir, "conversations")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "conv-1.json"), []byte(storedRecord), 0o644)).To(Succeed())
	})

	It("accepts at most one argument", func() {
		cmd := historycmder.NewHistoryCmd()
		Expect(cmd.Args(cmd, []string{"a", "b"})).To(HaveOccurred())
	})

	It("lists stored conversations", func() {
		cmd, out := newCmd()
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("conv-1"))
		Expect(out.String()).To(ContainSubstring("2 turns"))
	})

	It("prints the turns of one conversation", func() {
		cmd, out := newCmd("conv-1")
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("My name is Zhang San"))
		Expect(out.String()).To(ContainSubstring("Your name is Zhang San."))
	})

	It("prints the stored record as JSON", func() {
		cmd, out := newCmd("conv-1", "--json")
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`"conversations"`))
		Expect(out.String()).To(ContainSubstring(`"Human": "What is my name?"`))
	})

	It("reports an unknown conversation as empty", func() {
		cmd, out := newCmd("missing")
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No turns stored"))
	})
})
