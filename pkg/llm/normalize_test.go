package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/llm"
)

type named struct{}

func (named) String() string { return "stringer" }

var _ = Describe("Text", func() {
	DescribeTable("extracts reply text",
		func(in any, want string) {
			Expect(llm.Text(in)).To(Equal(want))
		},
		Entry("nil", nil, ""),
		Entry("string", "hi", "hi"),
		Entry("bytes", []byte("raw"), "raw"),
		Entry("response pointer", &llm.ChatResponse{Message: llm.NewTextMessage("assistant", "a")}, "a"),
		Entry("nil response pointer", (*llm.ChatResponse)(nil), ""),
		Entry("message", llm.NewTextMessage("assistant", "m"), "m"),
		Entry("content blocks", []llm.ContentBlock{{Type: "text", Text: "x"}, {Type: "image"}, {Type: "text", Text: "y"}}, "xy"),
		Entry("map with content", map[string]any{"content": "c"}, "c"),
		Entry("map with text", map[string]any{"text": "t"}, "t"),
		Entry("nested message map", map[string]any{"message": map[string]any{"content": "n"}}, "n"),
		Entry("map without text", map[string]any{"other": 1}, ""),
		Entry("list", []any{"a", map[string]any{"text": "b"}}, "ab"),
		Entry("stringer", named{}, "stringer"),
		Entry("number", 42, "42"),
	)
})

var _ = Describe("NewPromptRequest", func() {
	It("wraps the prompt as one user message", func() {
		req := llm.NewPromptRequest("glm-4", "Human: hi\nAI: ")
		Expect(req.Model).To(Equal("glm-4"))
		Expect(req.Messages).To(HaveLen(1))
		Expect(req.Messages[0].Role).To(Equal("user"))
		Expect(req.Messages[0].GetText()).To(Equal("Human: hi\nAI: "))
	})
})
