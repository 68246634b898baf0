// Package prompt builds model prompts from conversation history and
// retrieved passages, and loads persona templates from disk.
package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/retrieval"
)

// ContextHeader introduces the retrieved passages block.
const ContextHeader = "【相关信息参考】"

// Assembler renders the prompt sent to the model. The zero value applies no
// length limit.
type Assembler struct {
	// MaxChars bounds the prompt length in runes. When exceeded, the oldest
	// turns are dropped first, then the lowest scoring passages. The new
	// human line and the AI cue are never trimmed, so a single oversized
	// input may still exceed the bound.
	MaxChars int
}

// Build renders, in order: the retrieved context block (when any passages
// remain), prior turns as "Human: x" / "AI: y" lines, then the cue
// "Human: <newHuman>\nAI: ". Line breaks inside messages and passages are
// folded so every entry stays on one line. Build is deterministic and does
// not modify its arguments.
func (a Assembler) Build(history []conversation.Turn, retrieved []retrieval.Passage, newHuman string) string {
	turns := history
	passages := retrieved
	if a.MaxChars > 0 {
		turns, passages = a.trim(history, retrieved, newHuman)
	}

	return render(turns, passages, newHuman)
}

// trim measures every line once and drops from the front of the history,
// then from the end of the passages, against a running total.
func (a Assembler) trim(turns []conversation.Turn, passages []retrieval.Passage, newHuman string) ([]conversation.Turn, []retrieval.Passage) {
	turnLens := make([]int, len(turns))
	total := runes(cue(newHuman))
	for i := range turns {
		turnLens[i] = runes(conversation.FormatTranscript(turns[i : i+1]))
		total += turnLens[i]
	}

	passageLens := make([]int, len(passages))
	nonBlank := 0
	for i, p := range passages {
		if line := passageLine(p); line != "" {
			passageLens[i] = runes(line)
			total += passageLens[i]
			nonBlank++
		}
	}
	// Header line plus the blank separator after the block.
	framing := runes(ContextHeader) + 2
	if nonBlank > 0 {
		total += framing
	}

	for len(turns) > 0 && total > a.MaxChars {
		total -= turnLens[0]
		turns, turnLens = turns[1:], turnLens[1:]
	}

	for len(passages) > 0 && total > a.MaxChars {
		last := len(passages) - 1
		if passageLens[last] > 0 {
			total -= passageLens[last]
			nonBlank--
			if nonBlank == 0 {
				total -= framing
			}
		}
		passages, passageLens = passages[:last], passageLens[:last]
	}

	return turns, passages
}

func render(turns []conversation.Turn, passages []retrieval.Passage, newHuman string) string {
	var b strings.Builder

	if block := contextBlock(passages); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString(conversation.FormatTranscript(turns))
	b.WriteString(cue(newHuman))
	return b.String()
}

func contextBlock(passages []retrieval.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		line := passageLine(p)
		if line == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(ContextHeader)
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

// passageLine is the rendered line for p, empty when p has no content.
func passageLine(p retrieval.Passage) string {
	content := strings.TrimSpace(conversation.FoldLines(p.Content))
	if content == "" {
		return ""
	}
	return content + "\n"
}

func cue(newHuman string) string {
	return "Human: " + conversation.FoldLines(newHuman) + "\nAI: "
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}
