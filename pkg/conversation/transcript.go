package conversation

import (
	"strings"
)

const (
	humanMarker = "Human:"
	aiMarker    = "AI:"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FoldLines replaces line breaks with spaces so text always renders as a
// single transcript line and cannot start a line with a marker of its own.
func FoldLines(s string) string {
	return lineBreaks.Replace(s)
}

// ParseTranscript rebuilds turns from a raw "Human: ..." / "AI: ..."
// transcript. Blank lines are skipped, a human line without a following AI
// line is dropped, and lines carrying neither marker are ignored. A second
// human line before any AI reply replaces the pending one.
func ParseTranscript(transcript string) []Turn {
	turns := []Turn{}

	var (
		pending string
		waiting bool
	)

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, humanMarker):
			pending = strings.TrimSpace(strings.TrimPrefix(line, humanMarker))
			waiting = true

		case strings.HasPrefix(line, aiMarker):
			if !waiting {
				continue
			}
			ai := strings.TrimSpace(strings.TrimPrefix(line, aiMarker))
			turns = append(turns, Turn{Human: pending, AI: ai})
			pending, waiting = "", false
		}
	}

	return turns
}

// FormatTranscript renders turns in the transcript form understood by
// ParseTranscript, one line per message. Line breaks inside a message are
// folded into spaces.
func FormatTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(humanMarker)
		b.WriteString(" ")
		b.WriteString(FoldLines(t.Human))
		b.WriteString("\n")
		b.WriteString(aiMarker)
		b.WriteString(" ")
		b.WriteString(FoldLines(t.AI))
		b.WriteString("\n")
	}
	return b.String()
}
