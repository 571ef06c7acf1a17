package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// NATSSink publishes status updates to a JetStream subject for machine
// consumers.
type NATSSink struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSSink connects to NATS and ensures the stream exists.
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if cfg.Stream != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
		}
	}

	slog.Info("NATS sink connected", "url", cfg.URL, "subject", cfg.Subject)
	return &NATSSink{conn: conn, js: js, subject: cfg.Subject}, nil
}

// natsPayload is the wire shape of one published update.
type natsPayload struct {
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Repo      string    `json:"repo,omitempty"`
	Commit    string    `json:"commit,omitempty"`
	IssueID   int       `json:"issue_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeUpdate(update Update) ([]byte, error) {
	return json.Marshal(natsPayload{
		Kind:      update.Kind,
		Title:     update.Title,
		Repo:      update.Repo,
		Commit:    update.Commit,
		IssueID:   update.IssueID,
		Message:   update.Message,
		Timestamp: time.Now().UTC(),
	})
}

// Notify publishes one update. NATS carries no chaining identifier.
func (s *NATSSink) Notify(ctx context.Context, update Update) (int64, error) {
	data, err := encodeUpdate(update)
	if err != nil {
		return 0, fmt.Errorf("encode update: %w", err)
	}
	if _, err := s.js.Publish(ctx, s.subject, data); err != nil {
		return 0, fmt.Errorf("publish update: %w", err)
	}
	return 0, nil
}

// Close drains the NATS connection.
func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
