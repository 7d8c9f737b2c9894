package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace-service/internal/observability"
)

const (
	HookMatching   = "matching"
	HookAutomation = "automation"
)

// Candidate is a professional proposed for a job.
type Candidate struct {
	ID     string   `json:"id" validate:"required"`
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
}

// JobMatchRequest is posted to the AI-matching endpoint.
type JobMatchRequest struct {
	JobID       string      `json:"job_id"`
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description"`
	Skills      []string    `json:"skills"`
	Candidates  []Candidate `json:"candidates" validate:"dive"`
	RequestedBy string      `json:"requested_by"`
}

// ProfileCompleted is posted to the automation endpoint.
type ProfileCompleted struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier posts fire-and-forget webhooks. Failures are logged and counted,
// never reported to the caller.
type Notifier struct {
	client        *http.Client
	matchingURL   string
	automationURL string
	timeout       time.Duration
	logger        logrus.FieldLogger
	wg            sync.WaitGroup
}

// NewNotifier constructs a Notifier. An empty URL disables that hook.
func NewNotifier(matchingURL, automationURL string, timeout time.Duration, logger logrus.FieldLogger) *Notifier {
	return &Notifier{
		client:        &http.Client{Timeout: timeout},
		matchingURL:   matchingURL,
		automationURL: automationURL,
		timeout:       timeout,
		logger:        logger,
	}
}

// JobMatch schedules delivery of a matching request.
func (n *Notifier) JobMatch(req JobMatchRequest) {
	n.fire(HookMatching, n.matchingURL, req)
}

// ProfileCompleted schedules delivery of a profile-completion event.
func (n *Notifier) ProfileCompleted(event ProfileCompleted) {
	n.fire(HookAutomation, n.automationURL, event)
}

// Wait blocks until scheduled deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) fire(hook, url string, payload any) {
	if url == "" {
		observability.IncWebhook(hook, "disabled")
		n.logger.WithField("hook", hook).Debug("webhook disabled, skipping")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.Deliver(ctx, url, payload); err != nil {
			observability.IncWebhook(hook, "failed")
			n.logger.WithError(err).WithField("hook", hook).Warn("webhook delivery failed")
			return
		}
		observability.IncWebhook(hook, "delivered")
	}()
}

// Deliver posts payload as JSON and treats any non-2xx status as failure.
func (n *Notifier) Deliver(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
