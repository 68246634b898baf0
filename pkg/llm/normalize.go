package llm

import (
	"fmt"
	"strings"
)

// Text extracts the reply text from the shapes provider clients and test
// doubles hand back: plain strings, responses, messages, content blocks and
// decoded JSON objects carrying a "content" or "text" field.
func Text(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case *ChatResponse:
		if r == nil {
			return ""
		}
		return r.Message.GetText()
	case ChatResponse:
		return r.Message.GetText()
	case *Message:
		if r == nil {
			return ""
		}
		return r.GetText()
	case Message:
		return r.GetText()
	case []ContentBlock:
		m := Message{Content: r}
		return m.GetText()
	case map[string]any:
		for _, key := range []string{"content", "text", "response", "output"} {
			if inner, ok := r[key]; ok {
				return Text(inner)
			}
		}
		if msg, ok := r["message"]; ok {
			return Text(msg)
		}
		return ""
	case []any:
		parts := make([]string, 0, len(r))
		for _, item := range r {
			if s := Text(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	case fmt.Stringer:
		return r.String()
	default:
		return fmt.Sprint(r)
	}
}
