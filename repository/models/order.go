package models

import "time"

// Manufacturing order statuses.
const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusOnHold     = "on_hold"
)

// ManufacturingOrder is a target quantity of one panel type. Counters are
// maintained exclusively by the order tracker; the only legal path to
// OrderStatusCompleted is the tracker observing the final panel completion.
type ManufacturingOrder struct {
	ID             string    `gorm:"column:order_id;primaryKey;type:varchar(50)"`
	PanelType      int       `gorm:"column:panel_type;not null"`
	TargetQty      int       `gorm:"column:target_qty;not null"`
	CompletedCount int       `gorm:"column:completed_count;not null;default:0"`
	FailedCount    int       `gorm:"column:failed_count;not null;default:0"`
	Status         string    `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	StartDate      time.Time `gorm:"column:start_date;not null"`
	EndDate        time.Time `gorm:"column:end_date;not null"`
	// LowStockNotified makes the remaining-to-target alert one-shot.
	LowStockNotified bool `gorm:"column:low_stock_notified;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	Panels  []Panel  `gorm:"foreignKey:OrderID"`
	Pallets []Pallet `gorm:"foreignKey:OrderID"`
}

func (ManufacturingOrder) TableName() string { return "manufacturing_orders" }

// Closed reports whether the order no longer accepts panel associations.
func (o *ManufacturingOrder) Closed() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// Remaining is the count of completions still needed to hit the target.
func (o *ManufacturingOrder) Remaining() int {
	return o.TargetQty - o.CompletedCount
}
