package checkout

import (
	"context"
	"log"
	"time"

	"github.com/shopfront/checkout/internal/notify"
	"github.com/shopfront/checkout/internal/repository"
)

const repairBatchSize = 50

// RepairSweeper periodically looks for orders whose line items never made it
// to the database. The finalizer does not roll the order back in that case,
// so the sweep is what surfaces the leftovers to the admin channel.
type RepairSweeper struct {
	store    repository.Store
	notifier notify.Dispatcher
	interval time.Duration
}

func NewRepairSweeper(store repository.Store, notifier notify.Dispatcher, interval time.Duration) *RepairSweeper {
	return &RepairSweeper{
		store:    store,
		notifier: notifier,
		interval: interval,
	}
}

func (s *RepairSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RepairSweeper) sweep(ctx context.Context) {
	orders, err := s.store.OrdersWithoutItems(ctx, repairBatchSize)
	if err != nil {
		log.Printf("repair sweep failed: %v", err)
		return
	}

	for _, order := range orders {
		log.Printf("order %s has no line items, flagging for manual repair", order.OrderNumber)
		s.notifier.NotifyAdmin(ctx, notify.OrderNotification{
			OrderNumber:   order.OrderNumber,
			Total:         order.Total,
			PaymentMethod: order.PaymentMethod,
		})
	}
}
