package workflow

import (
	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
)

// OrderTracker rolls panel completions and failures up into manufacturing
// order aggregates. The engine calls it under the order lock before the
// transition commits, so the counter update lands in the same store write as
// the panel mutation; a storage failure rolls back both or neither.
type OrderTracker struct {
	engine *Engine
}

func newOrderTracker(e *Engine) *OrderTracker {
	return &OrderTracker{engine: e}
}

// recordCompletion applies one panel completion to the order in memory and
// returns the order to persist, whether this completion closed the order, and
// whether it tripped the one-shot low-stock alert. A nil order means the
// counter was already at the target and nothing needs writing.
func (t *OrderTracker) recordCompletion(order *models.ManufacturingOrder, serial string) (*models.ManufacturingOrder, bool, bool) {
	e := t.engine

	if order.CompletedCount >= order.TargetQty {
		// A panel finishing after its order already closed: the counter is
		// capped at the target, the completion stays on the panel record.
		e.logger.Error("panel completed after order close", "order", order.ID, "serial", serial)
		return nil, false, false
	}

	order.CompletedCount++
	if order.Status == models.OrderStatusPending {
		order.Status = models.OrderStatusInProgress
	}

	completed := order.CompletedCount == order.TargetQty
	if completed {
		order.Status = models.OrderStatusCompleted
	}

	lowStock := !order.LowStockNotified && !completed &&
		order.Remaining() <= e.cfg.LowStockThreshold
	if lowStock {
		order.LowStockNotified = true
	}

	return order, completed, lowStock
}

// recordFailure applies one panel failure to the order in memory.
func (t *OrderTracker) recordFailure(order *models.ManufacturingOrder) {
	order.FailedCount++
	if order.Status == models.OrderStatusPending {
		order.Status = models.OrderStatusInProgress
	}
}
