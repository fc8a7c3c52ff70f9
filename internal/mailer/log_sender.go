package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
)

// LogSender is the development transport: it renders the full MIME message,
// logs a summary and, when Dir is set, drops the message there as an .eml file.
type LogSender struct {
	Dir    string
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) error {
	e := email.NewEmail()
	e.From = m.From
	e.To = m.To
	e.Subject = m.Subject
	e.HTML = m.HTML
	e.Text = m.Text
	raw, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"to", strings.Join(m.To, ","), "subject", m.Subject, "bytes", len(raw)}
	if s.Dir != "" {
		name := fmt.Sprintf("%s-%s.eml", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
		path := filepath.Join(s.Dir, name)
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return err
		}
		attrs = append(attrs, "file", path)
	}
	logger.InfoContext(ctx, "mail not sent, smtp disabled", attrs...)
	return nil
}
