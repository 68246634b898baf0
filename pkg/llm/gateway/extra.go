package gateway

import (
	"fmt"

	"github.com/papercomputeco/parley/pkg/llm"
)

// applyExtra copies recognized generation parameters onto req. Unknown keys
// are forwarded in req.Extra.
func applyExtra(req *llm.ChatRequest, extra map[string]any) {
	for k, v := range extra {
		switch k {
		case "temperature":
			if f, ok := toFloat(v); ok {
				req.Temperature = &f
			}
		case "top_p":
			if f, ok := toFloat(v); ok {
				req.TopP = &f
			}
		case "max_tokens":
			if n, ok := toInt(v); ok {
				req.MaxTokens = &n
			}
		case "top_k":
			if n, ok := toInt(v); ok {
				req.TopK = &n
			}
		case "system":
			req.System = fmt.Sprint(v)
		case "stop":
			req.Stop = toStrings(v)
		default:
			if req.Extra == nil {
				req.Extra = make(map[string]any)
			}
			req.Extra[k] = v
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}
