package live

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// WriterSink prints replies as "username: text" lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Deliver(_ context.Context, r Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := r.Message.Username
	if name == "" {
		name = r.Message.UserID
	}
	_, err := fmt.Fprintf(s.w, "@%s %s\n", name, r.Text)
	return err
}

// LogSink records replies on a logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Deliver(_ context.Context, r Reply) error {
	s.logger.Info("live reply",
		"user_id", r.Message.UserID,
		"conversation_id", r.ConversationID,
		"reply", r.Text,
	)
	return nil
}
