package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("stamps new events with schema, type and a unique id", func() {
		turn := eventstream.TurnPayload{ConversationID: "c1", Seq: 2, Human: "hi", AI: "hello"}
		a := eventstream.NewTurnPersistedEvent(eventstream.EventSource{Service: "parley"}, turn)
		b := eventstream.NewTurnPersistedEvent(eventstream.EventSource{Service: "parley"}, turn)

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal("parley.turn.persisted"))
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt).To(BeTemporally("~", time.Now(), time.Minute))
		Expect(a.Turn).To(Equal(turn))
	})

	It("marshals with the expected top-level and turn keys", func() {
		event := eventstream.NewTurnPersistedEvent(
			eventstream.EventSource{Service: "parley", Provider: "zhipu"},
			eventstream.TurnPayload{ConversationID: "c1", Human: "hi", AI: "hello"},
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got["turn"]).To(HaveKeyWithValue("conversation_id", "c1"))
		Expect(got["turn"]).NotTo(HaveKey("user_id"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
