// Package memory contains notifiers that keep deliveries in process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

// Publisher stores notifications for inspection and optionally logs them.
// It is the default notifier when no broker is configured.
type Publisher struct {
	mu       sync.RWMutex
	messages []crawler.Notification
	logger   *zap.Logger
}

// New returns a memory Publisher. A nil logger keeps it silent.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("notify")}
}

// Notify records n, logs the email body and returns a pseudo id.
func (p *Publisher) Notify(_ context.Context, n crawler.Notification) (string, error) {
	p.mu.Lock()
	p.messages = append(p.messages, n)
	id := fmt.Sprintf("memory-%d", len(p.messages))
	p.mu.Unlock()

	p.logger.Info("Notification ready",
		zap.String("id", id),
		zap.String("service_center", string(n.Center)),
		zap.Float64("percentile", n.Percentile),
		zap.String("attachment", n.AttachmentPath),
		zap.String("html", n.HTMLContent),
	)
	return id, nil
}

// Messages returns the recorded notifications.
func (p *Publisher) Messages() []crawler.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.Notification, len(p.messages))
	copy(out, p.messages)
	return out
}
