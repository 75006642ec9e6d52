package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stocksense/stocksense/internal/auth"
	"github.com/stocksense/stocksense/internal/inventory"
)

// EmailEnqueuer abstracts the queue client for the notifier.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// OwnerDirectory resolves an owner id to an account.
type OwnerDirectory interface {
	FindByID(ctx context.Context, id int64) (auth.User, error)
}

// LowStockNotifier emails the owner when a product runs low. Delivery goes
// through the job queue so a slow SMTP server never blocks a request.
type LowStockNotifier struct {
	logger   *slog.Logger
	enqueuer EmailEnqueuer
	owners   OwnerDirectory
}

// NewLowStockNotifier constructs a LowStockNotifier.
func NewLowStockNotifier(logger *slog.Logger, enqueuer EmailEnqueuer, owners OwnerDirectory) *LowStockNotifier {
	return &LowStockNotifier{logger: logger, enqueuer: enqueuer, owners: owners}
}

var _ inventory.NotifierPort = (*LowStockNotifier)(nil)

// LowStock enqueues a low-stock alert email for the product's owner.
func (n *LowStockNotifier) LowStock(ctx context.Context, product inventory.Product) error {
	owner, err := n.owners.FindByID(ctx, product.OwnerID)
	if err != nil {
		n.logger.Warn("low stock owner lookup", slog.Int64("owner_id", product.OwnerID), slog.Any("error", err))
		return err
	}

	payload := SendEmailPayload{
		To:      owner.Email,
		Subject: fmt.Sprintf("Low stock alert: %s", product.Name),
		Body: fmt.Sprintf("Hi %s,\n\n%s is running low: %d %s left (reorder level %d).\n\nStockSense",
			owner.Name, product.Name, product.Quantity, product.Unit, product.MinStockLevel),
	}
	if _, err := n.enqueuer.EnqueueSendEmail(ctx, payload); err != nil {
		n.logger.Warn("enqueue low stock email", slog.Any("error", err))
		return err
	}
	return nil
}
