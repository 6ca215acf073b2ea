package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/barcode"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
)

// PalletManager groups completed panels into shipping pallets, assigning
// row-major grid positions and closing pallets at capacity. Assignments for
// one order are serialized on the order key, which makes position allocation
// race-free by construction (a pallet belongs to exactly one order).
type PalletManager struct {
	engine *Engine

	palletMu *keyedMutex
}

func newPalletManager(e *Engine) *PalletManager {
	return &PalletManager{engine: e, palletMu: newKeyedMutex()}
}

// Handle consumes lifecycle events. Completions are only logged here —
// palletizing is operator-driven, the subscriber just surfaces eligibility.
func (m *PalletManager) Handle(ev Event) error {
	if ev.Type == EventPanelCompleted {
		m.engine.logger.Info("panel eligible for palletizing", "serial", ev.PanelSerial, "order", ev.OrderID)
	}
	return nil
}

// AssignInput names the panel to palletize. PalletID empty means "auto":
// the current open pallet for the panel's order, or a new one. Capacity only
// applies when a new pallet is opened; zero means the line default.
type AssignInput struct {
	PanelSerial string
	PalletID    string
	Capacity    int
}

// Assign places a completed panel on a pallet at the next free row-major
// grid position. The pallet auto-closes when the assignment reaches
// capacity.
func (m *PalletManager) Assign(ctx context.Context, in AssignInput) (*models.PalletAssignment, error) {
	e := m.engine

	unlockPanel := e.panelMu.lock(in.PanelSerial)
	defer unlockPanel()

	panel, err := e.store.GetPanel(ctx, in.PanelSerial)
	if err != nil {
		return nil, err
	}
	if panel.Status != models.PanelStatusCompleted {
		return nil, NewError(KindNotCompleted, "completed_only",
			"panel %s is %s; only completed panels are palletized", panel.SerialNumber, panel.Status)
	}
	if panel.PalletID != nil {
		return nil, NewError(KindPrecondViolation, "single_assignment",
			"panel %s is already on pallet %s", panel.SerialNumber, *panel.PalletID)
	}

	// Serialize pallet selection and position allocation per order.
	unlockOrder := m.palletMu.lock(panel.OrderID)
	defer unlockOrder()

	var pallet *models.Pallet
	opened := false
	if in.PalletID != "" {
		pallet, err = e.store.GetPallet(ctx, in.PalletID)
		if err != nil {
			return nil, err
		}
		if pallet.OrderID != panel.OrderID {
			return nil, NewError(KindPrecondViolation, "pallet_order",
				"pallet %s belongs to order %s, panel to %s", pallet.ID, pallet.OrderID, panel.OrderID)
		}
	} else {
		pallet, err = e.store.FindOpenPallet(ctx, panel.OrderID)
		if err != nil {
			return nil, err
		}
		if pallet == nil {
			pallet, err = m.openPallet(ctx, panel, in.Capacity)
			if err != nil {
				return nil, err
			}
			opened = true
		}
	}

	if pallet.Status == models.PalletStatusCompleted {
		return nil, NewError(KindPalletClosed, "",
			"pallet %s is closed to further assignment", pallet.ID)
	}
	if pallet.Full() {
		return nil, NewError(KindPalletFull, "", "pallet %s is at capacity %d", pallet.ID, pallet.Capacity)
	}

	// Next free position in row-major order. Positions are allocated
	// sequentially under the order lock, so uniqueness holds by
	// construction.
	idx := pallet.AssignedCount
	asg := &models.PalletAssignment{
		PalletID:    pallet.ID,
		PanelSerial: panel.SerialNumber,
		PosX:        idx % models.GridSize,
		PosY:        idx / models.GridSize,
	}

	pallet.AssignedCount++
	closed := pallet.Full()
	if closed {
		pallet.Status = models.PalletStatusCompleted
	}
	panel.PalletID = &pallet.ID

	if err := e.store.ApplyAssignment(ctx, pallet, asg, panel); err != nil {
		return nil, err
	}

	e.logger.Info("panel palletized", "serial", panel.SerialNumber, "pallet", pallet.ID,
		"pos_x", asg.PosX, "pos_y", asg.PosY, "count", pallet.AssignedCount)
	if opened {
		e.publish(Event{Type: EventPalletOpened, OrderID: pallet.OrderID, PalletID: pallet.ID, At: e.now()})
	}
	e.publish(Event{
		Type:        EventPalletAssigned,
		PanelSerial: panel.SerialNumber,
		OrderID:     pallet.OrderID,
		PalletID:    pallet.ID,
		At:          e.now(),
		Detail:      map[string]string{"pos": fmt.Sprintf("%d,%d", asg.PosX, asg.PosY)},
	})
	if closed {
		e.publish(Event{Type: EventPalletClosed, OrderID: pallet.OrderID, PalletID: pallet.ID, At: e.now(),
			Detail: map[string]string{"reason": "capacity"}})
	}
	return asg, nil
}

func (m *PalletManager) openPallet(ctx context.Context, panel *models.Panel, capacity int) (*models.Pallet, error) {
	e := m.engine
	if capacity == 0 {
		capacity = e.cfg.DefaultCapacityLineA
		if panel.Line == barcode.LineB {
			capacity = e.cfg.DefaultCapacityLineB
		}
	}
	if capacity < 1 || capacity > models.GridSize*models.GridSize {
		return nil, NewError(KindMalformedInput, "capacity",
			"pallet capacity %d outside 1-%d", capacity, models.GridSize*models.GridSize)
	}

	pallet := &models.Pallet{
		ID:       fmt.Sprintf("PLT-%s", uuid.NewString()),
		OrderID:  panel.OrderID,
		Capacity: capacity,
		Status:   models.PalletStatusInProgress,
	}
	if err := e.store.CreatePallet(ctx, pallet); err != nil {
		return nil, err
	}
	e.logger.Info("pallet opened", "pallet", pallet.ID, "order", pallet.OrderID, "capacity", capacity)
	return pallet, nil
}

// CloseManually completes a pallet below capacity on explicit operator
// intent. A closed pallet is terminal; it never reopens.
func (m *PalletManager) CloseManually(ctx context.Context, palletID string) (*models.Pallet, error) {
	e := m.engine

	pallet, err := e.store.GetPallet(ctx, palletID)
	if err != nil {
		return nil, err
	}

	unlockOrder := m.palletMu.lock(pallet.OrderID)
	defer unlockOrder()

	// Re-read under the lock; a concurrent assignment may have closed it.
	pallet, err = e.store.GetPallet(ctx, palletID)
	if err != nil {
		return nil, err
	}
	if pallet.Status == models.PalletStatusCompleted {
		return nil, NewError(KindAlreadyClosed, "", "pallet %s is already closed", palletID)
	}

	pallet.Status = models.PalletStatusCompleted
	pallet.ClosedManually = true
	if err := e.store.UpdatePallet(ctx, pallet); err != nil {
		return nil, err
	}

	e.logger.Info("pallet closed manually", "pallet", pallet.ID,
		"assigned", pallet.AssignedCount, "capacity", pallet.Capacity)
	e.publish(Event{Type: EventPalletClosed, OrderID: pallet.OrderID, PalletID: pallet.ID, At: e.now(),
		Detail: map[string]string{"reason": "manual"}})
	return pallet, nil
}

// ManifestEntry is one pallet slot in the shipping manifest.
type ManifestEntry struct {
	PanelSerial string     `json:"panel_serial"`
	PosX        int        `json:"pos_x"`
	PosY        int        `json:"pos_y"`
	Wattage     *float64   `json:"wattage,omitempty"`
	Vmp         *float64   `json:"vmp,omitempty"`
	Imp         *float64   `json:"imp,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Manifest is the read-only pallet projection handed to shipping.
type Manifest struct {
	Pallet  *models.Pallet  `json:"pallet"`
	Entries []ManifestEntry `json:"entries"`
}

// BuildManifest assembles the manifest for a pallet: serials, electrical
// readings where present, final-station timestamps and the assigned count.
func (m *PalletManager) BuildManifest(ctx context.Context, palletID string) (*Manifest, error) {
	e := m.engine

	pallet, err := e.store.GetPallet(ctx, palletID)
	if err != nil {
		return nil, err
	}
	assignments, err := e.store.ListAssignments(ctx, palletID)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{Pallet: pallet, Entries: make([]ManifestEntry, 0, len(assignments))}
	for _, asg := range assignments {
		entry := ManifestEntry{PanelSerial: asg.PanelSerial, PosX: asg.PosX, PosY: asg.PosY}
		panel, err := e.store.GetPanel(ctx, asg.PanelSerial)
		if err == nil {
			entry.Wattage = panel.Wattage
			entry.Vmp = panel.Vmp
			entry.Imp = panel.Imp
			entry.CompletedAt = panel.Station4CompletedAt
		}
		manifest.Entries = append(manifest.Entries, entry)
	}
	return manifest, nil
}
