package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals a message event with expected top-level keys", func() {
		event := eventstream.NewEvent(eventstream.EventTypeMessageIngested, "SM123")
		event.Message = &eventstream.MessageMeta{
			UserID:            1,
			MessageID:         2,
			ProviderMessageID: "SM123",
			Kind:              "image",
			NumMedia:          1,
			MediaHashes:       []string{"abc"},
			NewMediaHashes:    []string{"abc"},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKeyWithValue("key", "SM123"))
		Expect(got).To(HaveKey("message"))
		Expect(got).NotTo(HaveKey("memory"))
	})

	It("stamps every event with a unique id", func() {
		a := eventstream.NewEvent(eventstream.EventTypeMemoryRecorded, "k")
		b := eventstream.NewEvent(eventstream.EventTypeMemoryRecorded, "k")
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EmittedAt.Location().String()).To(Equal("UTC"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMessageIngested).To(Equal("mnemo.message.ingested"))
		Expect(eventstream.EventTypeMemoryRecorded).To(Equal("mnemo.memory.recorded"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
