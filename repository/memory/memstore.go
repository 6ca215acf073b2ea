// Package memory provides an in-memory implementation of the workflow store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

// Compile-time contract assertion.
var _ workflow.Store = (*Store)(nil)

// Store keeps every record set in maps guarded by one mutex. Methods hand
// out deep copies, so callers can mutate results freely and nothing becomes
// visible before the corresponding Apply/Update call.
type Store struct {
	mu          sync.Mutex
	panels      map[string]models.Panel
	orders      map[string]models.ManufacturingOrder
	pallets     map[string]models.Pallet
	inspections map[string][]models.Inspection       // panel serial -> records
	assignments map[string][]models.PalletAssignment // pallet id -> slots
	nextAsgID   uint
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		panels:      make(map[string]models.Panel),
		orders:      make(map[string]models.ManufacturingOrder),
		pallets:     make(map[string]models.Pallet),
		inspections: make(map[string][]models.Inspection),
		assignments: make(map[string][]models.PalletAssignment),
	}
}

func notFound(what, id string) error {
	return workflow.NewError(workflow.KindNotFound, "", "%s %s does not exist", what, id)
}

func (s *Store) CreatePanel(_ context.Context, panel *models.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.panels[panel.SerialNumber]; exists {
		return workflow.NewError(workflow.KindDuplicateIdentifier, "",
			"panel %s already exists", panel.SerialNumber)
	}
	s.panels[panel.SerialNumber] = clonePanel(panel)
	return nil
}

func (s *Store) GetPanel(_ context.Context, serial string) (*models.Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	panel, ok := s.panels[serial]
	if !ok {
		return nil, notFound("panel", serial)
	}
	out := clonePanel(&panel)
	return &out, nil
}

func (s *Store) ListInspections(_ context.Context, serial string) ([]models.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.inspections[serial]
	out := make([]models.Inspection, len(records))
	copy(out, records)
	return out, nil
}

func (s *Store) ApplyTransition(_ context.Context, panel *models.Panel, insp *models.Inspection, order *models.ManufacturingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.panels[panel.SerialNumber]; !ok {
		return notFound("panel", panel.SerialNumber)
	}
	if order != nil {
		if _, ok := s.orders[order.ID]; !ok {
			return notFound("order", order.ID)
		}
	}
	if insp != nil {
		for _, existing := range s.inspections[panel.SerialNumber] {
			if existing.StationID == insp.StationID && existing.Attempt == insp.Attempt {
				return workflow.NewError(workflow.KindDuplicateInspection, "one_inspection_per_station",
					"inspection already recorded for station %d", insp.StationID)
			}
		}
		s.inspections[panel.SerialNumber] = append(s.inspections[panel.SerialNumber], *insp)
	}
	s.panels[panel.SerialNumber] = clonePanel(panel)
	if order != nil {
		s.orders[order.ID] = *order
	}
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order *models.ManufacturingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return workflow.NewError(workflow.KindDuplicateIdentifier, "",
			"order %s already exists", order.ID)
	}
	s.orders[order.ID] = *order
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.ManufacturingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	out := order
	out.Panels = nil
	out.Pallets = nil
	return &out, nil
}

func (s *Store) UpdateOrder(_ context.Context, order *models.ManufacturingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; !ok {
		return notFound("order", order.ID)
	}
	s.orders[order.ID] = *order
	return nil
}

func (s *Store) ListPanelsByOrder(_ context.Context, orderID string) ([]models.Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Panel
	for _, panel := range s.panels {
		if panel.OrderID == orderID {
			out = append(out, clonePanel(&panel))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (s *Store) CreatePallet(_ context.Context, pallet *models.Pallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pallets[pallet.ID]; exists {
		return workflow.NewError(workflow.KindDuplicateIdentifier, "",
			"pallet %s already exists", pallet.ID)
	}
	s.pallets[pallet.ID] = *pallet
	return nil
}

func (s *Store) GetPallet(_ context.Context, id string) (*models.Pallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pallet, ok := s.pallets[id]
	if !ok {
		return nil, notFound("pallet", id)
	}
	out := pallet
	out.Assignments = nil
	return &out, nil
}

func (s *Store) FindOpenPallet(_ context.Context, orderID string) (*models.Pallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []models.Pallet
	for _, pallet := range s.pallets {
		if pallet.OrderID == orderID && pallet.Status == models.PalletStatusInProgress {
			candidates = append(candidates, pallet)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) ||
			(candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) && candidates[i].ID < candidates[j].ID)
	})
	out := candidates[0]
	out.Assignments = nil
	return &out, nil
}

func (s *Store) UpdatePallet(_ context.Context, pallet *models.Pallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pallets[pallet.ID]; !ok {
		return notFound("pallet", pallet.ID)
	}
	s.pallets[pallet.ID] = *pallet
	return nil
}

func (s *Store) ApplyAssignment(_ context.Context, pallet *models.Pallet, asg *models.PalletAssignment, panel *models.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pallets[pallet.ID]; !ok {
		return notFound("pallet", pallet.ID)
	}
	if _, ok := s.panels[panel.SerialNumber]; !ok {
		return notFound("panel", panel.SerialNumber)
	}
	for _, existing := range s.assignments[pallet.ID] {
		if existing.PosX == asg.PosX && existing.PosY == asg.PosY {
			return workflow.NewError(workflow.KindPrecondViolation, "unique_position",
				"position (%d,%d) already taken on pallet %s", asg.PosX, asg.PosY, pallet.ID)
		}
	}

	s.nextAsgID++
	asg.ID = s.nextAsgID
	s.assignments[pallet.ID] = append(s.assignments[pallet.ID], *asg)
	s.pallets[pallet.ID] = *pallet
	s.panels[panel.SerialNumber] = clonePanel(panel)
	return nil
}

func (s *Store) ListAssignments(_ context.Context, palletID string) ([]models.PalletAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.assignments[palletID]
	out := make([]models.PalletAssignment, len(records))
	copy(out, records)
	return out, nil
}

// clonePanel deep-copies the pointer fields so handed-out panels never share
// memory with stored state.
func clonePanel(p *models.Panel) models.Panel {
	out := *p
	out.CurrentStation = cloneInt(p.CurrentStation)
	out.Station1CompletedAt = cloneTimePtr(p.Station1CompletedAt)
	out.Station2CompletedAt = cloneTimePtr(p.Station2CompletedAt)
	out.Station3CompletedAt = cloneTimePtr(p.Station3CompletedAt)
	out.Station4CompletedAt = cloneTimePtr(p.Station4CompletedAt)
	out.Wattage = cloneFloat(p.Wattage)
	out.Vmp = cloneFloat(p.Vmp)
	out.Imp = cloneFloat(p.Imp)
	out.PalletID = cloneString(p.PalletID)
	out.Order = nil
	out.Pallet = nil
	out.Inspections = nil
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
