// Package notify publishes run summaries to an outbound channel. Delivery
// is fire-and-forget: a failed notification is logged and never affects
// task state.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Summary describes the outcome of one task run.
type Summary struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Status   string `json:"status"`
	Total    int    `json:"total"`
	Success  int    `json:"success"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Note     string `json:"note,omitempty"`
}

type Notifier interface {
	RunFinished(summary Summary)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) RunFinished(Summary) {}

// Webhook POSTs summaries as JSON to a configured endpoint.
type Webhook struct {
	http *resty.Client
	url  string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		http: resty.New().SetTimeout(10 * time.Second),
		url:  url,
	}
}

func (w *Webhook) RunFinished(summary Summary) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_, err := w.http.R().
			SetContext(ctx).
			SetBody(summary).
			Post(w.url)
		if err != nil {
			log.Warn().Err(err).Str("task_id", summary.TaskID).Msg("run notification failed")
		}
	}()
}
