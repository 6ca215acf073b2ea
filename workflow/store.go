package workflow

import (
	"context"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
)

// Store is the durable record set behind the engine. Implementations must
// make each method atomic: either the full write commits or none of it does.
// Failures are reported as typed workflow errors (KindNotFound,
// KindDuplicateIdentifier, KindDuplicateInspection, KindTransient).
//
// The engine serializes conflicting calls per panel, order and pallet, so
// implementations do not need their own optimistic concurrency control —
// but uniqueness constraints (inspection per panel/station/attempt, grid
// position per pallet) must still hold at the storage layer.
type Store interface {
	// Panels
	CreatePanel(ctx context.Context, panel *models.Panel) error
	GetPanel(ctx context.Context, serial string) (*models.Panel, error)
	ListInspections(ctx context.Context, serial string) ([]models.Inspection, error)
	// ApplyTransition persists a panel mutation and, when non-nil, the
	// inspection that caused it and the owning order's counter update, as one
	// atomic write. Either the full effect set commits or none of it does.
	ApplyTransition(ctx context.Context, panel *models.Panel, insp *models.Inspection, order *models.ManufacturingOrder) error

	// Orders
	CreateOrder(ctx context.Context, order *models.ManufacturingOrder) error
	GetOrder(ctx context.Context, id string) (*models.ManufacturingOrder, error)
	UpdateOrder(ctx context.Context, order *models.ManufacturingOrder) error
	ListPanelsByOrder(ctx context.Context, orderID string) ([]models.Panel, error)

	// Pallets
	CreatePallet(ctx context.Context, pallet *models.Pallet) error
	GetPallet(ctx context.Context, id string) (*models.Pallet, error)
	// FindOpenPallet returns the in-progress pallet for an order, or nil
	// when every pallet of the order is closed.
	FindOpenPallet(ctx context.Context, orderID string) (*models.Pallet, error)
	UpdatePallet(ctx context.Context, pallet *models.Pallet) error
	// ApplyAssignment persists the assignment, the pallet counter/status
	// change and the panel's pallet reference as one atomic write.
	ApplyAssignment(ctx context.Context, pallet *models.Pallet, asg *models.PalletAssignment, panel *models.Panel) error
	ListAssignments(ctx context.Context, palletID string) ([]models.PalletAssignment, error)
}
