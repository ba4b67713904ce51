package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"gorm.io/gorm"
)

// NotifyWorker drains the notification outbox, delivering each event to the
// parent-notification webhook (an n8n flow that fans out to push/SMS). Events
// are marked sent only after a 2xx response, so delivery is retried on the
// next poll; the consumer dedupes on event ID.
type NotifyWorker struct {
	db          *gorm.DB
	interval    time.Duration
	webhookURL  string
	maxAttempts int
	httpClient  *http.Client
}

func NewNotifyWorker(db *gorm.DB, webhookURL string) *NotifyWorker {
	return &NotifyWorker{
		db:          db,
		interval:    15 * time.Second,
		webhookURL:  webhookURL,
		maxAttempts: 5,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *NotifyWorker) Start(ctx context.Context) {
	if w.webhookURL == "" {
		log.Println("⚠️ PARENT_NOTIFY_WEBHOOK not set, notification outbox will accumulate unsent events")
		return
	}
	log.Println("🔁 Starting Notify Worker (outbox → parent webhook)…")
	go w.run(ctx)
}

func (w *NotifyWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.drainBatch(ctx); err != nil {
				log.Printf("❌ [NOTIFY] Drain batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Notify Worker stopped")
			return
		}
	}
}

// drainBatch delivers up to 20 unsent events in creation order.
func (w *NotifyWorker) drainBatch(ctx context.Context) error {
	var events []models.NotificationEvent
	err := w.db.
		Where("sent_at IS NULL AND attempts < ?", w.maxAttempts).
		Order("created_at ASC").
		Limit(20).
		Find(&events).Error
	if err != nil {
		return fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	log.Printf("[NOTIFY] 📤 Delivering %d outbox event(s)…", len(events))

	for i := range events {
		event := &events[i]
		if err := w.deliver(ctx, event); err != nil {
			log.Printf("[NOTIFY] ⚠️ Delivery failed for event %s (attempt %d): %v",
				event.ID, event.Attempts+1, err)
			w.db.Model(event).Update("attempts", gorm.Expr("attempts + 1"))
			continue
		}

		now := time.Now()
		w.db.Model(event).Updates(map[string]interface{}{
			"sent_at":  &now,
			"attempts": gorm.Expr("attempts + 1"),
		})
	}
	return nil
}

func (w *NotifyWorker) deliver(ctx context.Context, event *models.NotificationEvent) error {
	body := fmt.Sprintf(`{"event_id":%q,"event_type":%q,"payload":%s}`,
		event.ID, event.EventType, event.PayloadJSON)

	req, err := http.NewRequestWithContext(ctx, "POST", w.webhookURL, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
