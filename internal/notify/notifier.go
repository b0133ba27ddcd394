package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/ethyields/internal/metrics"
	"github.com/web3-frozen/ethyields/internal/pools"
)

// ErrDelivery reports a failed chat send. Data persisted before it stays.
var ErrDelivery = errors.New("deliver notification")

// SendFunc delivers text to a chat.
type SendFunc func(ctx context.Context, chatID, text string) error

// Notifier sends the run digest to one configured chat.
type Notifier struct {
	send   SendFunc
	chatID string
	logger *slog.Logger
}

func New(send SendFunc, chatID string, logger *slog.Logger) *Notifier {
	return &Notifier{send: send, chatID: chatID, logger: logger}
}

// Notify sends the digest for fresh, which may be empty.
func (n *Notifier) Notify(ctx context.Context, date time.Time, fresh []pools.Pool) error {
	msg := Digest(date, fresh)
	if err := n.send(ctx, n.chatID, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		n.logger.Error("send digest failed", "chat_id", n.chatID, "error", err)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	n.logger.Info("digest sent", "chat_id", n.chatID, "new_pools", len(fresh))
	return nil
}
