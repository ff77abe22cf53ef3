package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/email"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
)

const (
	maxDeliveryAttempts = 5
	maxBackoffMinutes   = 60

	minDeliveryBatch = 1
	maxDeliveryBatch = 200

	// A processing row older than this lost its sender; the sweep returns it
	// to pending.
	staleClaimAge = 10 * time.Minute
)

var deliveryBodyTmpl = template.Must(template.New("delivery").Parse(`
<h2>{{.Title}}</h2>
<p>{{.Body}}</p>
<p>
	Category: {{.Category}}<br>
	{{if .ProjectName}}Project: {{.ProjectName}}<br>{{end}}
</p>
`))

// DeliveryResult summarizes one processing batch.
type DeliveryResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ProcessPendingDeliveries claims up to limit due email deliveries and sends
// them. Each delivery's outcome is independent; a transport failure schedules
// a retry with exponential backoff and never aborts the batch.
func (s *Service) ProcessPendingDeliveries(ctx context.Context, limit int) (*DeliveryResult, error) {
	if limit < minDeliveryBatch {
		limit = minDeliveryBatch
	}
	if limit > maxDeliveryBatch {
		limit = maxDeliveryBatch
	}

	claimed, err := s.deliveries.ClaimPendingEmail(ctx, limit, time.Now())
	if err != nil {
		return nil, err
	}

	result := &DeliveryResult{}
	for _, d := range claimed {
		result.Processed++
		if s.metrics != nil {
			s.metrics.DeliveriesProcessed.Inc()
		}

		if err := s.sendEmailDelivery(ctx, d); err != nil {
			s.handleDeliveryError(ctx, d, err)
			result.Failed++
			if s.metrics != nil {
				s.metrics.DeliveriesFailed.Inc()
			}
			continue
		}

		if err := s.deliveries.MarkSent(ctx, d.ID, d.Attempts+1, time.Now()); err != nil {
			s.logger.Error(err, "failed to mark delivery sent", "delivery_id", d.ID.String())
		}
		result.Sent++
		if s.metrics != nil {
			s.metrics.DeliveriesSent.Inc()
		}
	}

	return result, nil
}

func (s *Service) sendEmailDelivery(ctx context.Context, d *model.EmailDelivery) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(d.Priority)), d.Title)

	var body bytes.Buffer
	data := struct {
		Title       string
		Body        string
		Category    string
		ProjectName string
	}{
		Title:    d.Title,
		Body:     d.Body,
		Category: d.Category,
	}
	if d.ProjectName != nil {
		data.ProjectName = *d.ProjectName
	}
	if err := deliveryBodyTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render email body: %w", err)
	}

	return s.emailSvc.Send(ctx, &email.Message{
		To:      d.Email,
		Subject: subject,
		HTML:    body.String(),
	})
}

func (s *Service) handleDeliveryError(ctx context.Context, d *model.EmailDelivery, sendErr error) {
	attempts := d.Attempts + 1

	if attempts >= maxDeliveryAttempts {
		if err := s.deliveries.MarkFailed(ctx, d.ID, attempts, sendErr.Error()); err != nil {
			s.logger.Error(err, "failed to mark delivery failed", "delivery_id", d.ID.String())
		}
		s.logger.Warn("delivery permanently failed",
			"delivery_id", d.ID.String(), "attempts", attempts, "error", sendErr.Error())
		return
	}

	next := time.Now().Add(backoffDelay(attempts))
	if err := s.deliveries.MarkRetry(ctx, d.ID, attempts, &next, sendErr.Error()); err != nil {
		s.logger.Error(err, "failed to schedule delivery retry", "delivery_id", d.ID.String())
	}
}

// ReclaimStaleDeliveries recovers processing rows abandoned by a crashed
// sender. Called by the periodic sweep.
func (s *Service) ReclaimStaleDeliveries(ctx context.Context) (int64, error) {
	return s.deliveries.ReclaimStale(ctx, time.Now().Add(-staleClaimAge))
}

// backoffDelay returns min(60, 2^attempts) minutes.
func backoffDelay(attempts int) time.Duration {
	minutes := 1
	for i := 0; i < attempts && minutes < maxBackoffMinutes; i++ {
		minutes *= 2
	}
	if minutes > maxBackoffMinutes {
		minutes = maxBackoffMinutes
	}
	return time.Duration(minutes) * time.Minute
}
