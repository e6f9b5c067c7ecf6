package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/email"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
)

type emailPayload struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	SimulateFailure bool   `json:"simulate_failure"`
}

type emailResult struct {
	Status     string `json:"status"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	MessageID  string `json:"message_id"`
	Characters int    `json:"characters"`
}

// Email delivers through the configured sender: Resend in production, the
// log sender locally.
func Email(sender email.Sender, logger *slog.Logger) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var p emailPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode email payload: %w", err)
		}
		if p.To == "" {
			p.To = "unknown@example.com"
		}
		if p.Subject == "" {
			p.Subject = "No Subject"
		}

		logger.Info("sending email", "to", p.To, "subject", p.Subject)

		// Simulated SMTP latency.
		if err := wait(ctx, 500*time.Millisecond); err != nil {
			return nil, err
		}
		if p.SimulateFailure {
			return nil, errors.New("SMTP connection refused (simulated)")
		}

		if err := sender.Send(ctx, p.To, p.Subject, p.Body); err != nil {
			return nil, err
		}

		return json.Marshal(emailResult{
			Status:     "sent",
			To:         p.To,
			Subject:    p.Subject,
			MessageID:  "msg-" + uuid.NewString(),
			Characters: len(p.Body),
		})
	}
}
