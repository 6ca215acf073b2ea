package memory

import (
	"context"
	"testing"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

func TestPanelsAreHandedOutAsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	panel := &models.Panel{
		SerialNumber: "CRS25WT36-00001",
		PanelType:    36,
		Line:         "A",
		Status:       models.PanelStatusPending,
		OrderID:      "ORD-1",
	}
	if err := s.CreatePanel(ctx, panel); err != nil {
		t.Fatalf("creating panel: %v", err)
	}

	got, err := s.GetPanel(ctx, "CRS25WT36-00001")
	if err != nil {
		t.Fatalf("getting panel: %v", err)
	}
	got.Status = models.PanelStatusFailed
	station := 3
	got.CurrentStation = &station

	again, err := s.GetPanel(ctx, "CRS25WT36-00001")
	if err != nil {
		t.Fatalf("re-getting panel: %v", err)
	}
	if again.Status != models.PanelStatusPending || again.CurrentStation != nil {
		t.Fatalf("stored panel was mutated through a handed-out copy: %+v", again)
	}
}

func TestApplyTransitionEnforcesInspectionUniqueness(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	panel := &models.Panel{SerialNumber: "CRS25WT36-00001", PanelType: 36, Line: "A", Status: models.PanelStatusPending, OrderID: "ORD-1"}
	if err := s.CreatePanel(ctx, panel); err != nil {
		t.Fatalf("creating panel: %v", err)
	}

	insp := &models.Inspection{ID: "INS-a", PanelSerial: panel.SerialNumber, StationID: 1, Attempt: 0, Result: models.ResultPass}
	if err := s.ApplyTransition(ctx, panel, insp, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	dup := &models.Inspection{ID: "INS-b", PanelSerial: panel.SerialNumber, StationID: 1, Attempt: 0, Result: models.ResultPass}
	err := s.ApplyTransition(ctx, panel, dup, nil)
	if !workflow.IsKind(err, workflow.KindDuplicateInspection) {
		t.Fatalf("expected duplicate inspection error, got %v", err)
	}

	// A new attempt at the same station is a distinct record.
	retry := &models.Inspection{ID: "INS-c", PanelSerial: panel.SerialNumber, StationID: 1, Attempt: 1, Result: models.ResultPass}
	if err := s.ApplyTransition(ctx, panel, retry, nil); err != nil {
		t.Fatalf("retry transition: %v", err)
	}

	records, err := s.ListInspections(ctx, panel.SerialNumber)
	if err != nil {
		t.Fatalf("listing inspections: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 inspections, got %d", len(records))
	}
}

func TestApplyTransitionPersistsOrderCounters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	order := &models.ManufacturingOrder{ID: "ORD-1", PanelType: 36, TargetQty: 5, Status: models.OrderStatusInProgress}
	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("creating order: %v", err)
	}
	panel := &models.Panel{SerialNumber: "CRS25WT36-00001", PanelType: 36, Line: "A", Status: models.PanelStatusCompleted, OrderID: order.ID}
	if err := s.CreatePanel(ctx, panel); err != nil {
		t.Fatalf("creating panel: %v", err)
	}

	insp := &models.Inspection{ID: "INS-a", PanelSerial: panel.SerialNumber, StationID: 4, Attempt: 0, Result: models.ResultPass}
	order.CompletedCount = 1
	if err := s.ApplyTransition(ctx, panel, insp, order); err != nil {
		t.Fatalf("transition with order update: %v", err)
	}

	stored, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("getting order: %v", err)
	}
	if stored.CompletedCount != 1 {
		t.Fatalf("order counter not persisted: %+v", stored)
	}

	// An unknown order fails the whole write.
	ghost := &models.ManufacturingOrder{ID: "ORD-9", CompletedCount: 1}
	err = s.ApplyTransition(ctx, panel, nil, ghost)
	if !workflow.IsKind(err, workflow.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestFindOpenPalletPrefersOldest(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	pallets := []*models.Pallet{
		{ID: "PLT-b", OrderID: "ORD-1", Capacity: 25, Status: models.PalletStatusInProgress, CreatedAt: base.Add(time.Hour)},
		{ID: "PLT-a", OrderID: "ORD-1", Capacity: 25, Status: models.PalletStatusInProgress, CreatedAt: base},
		{ID: "PLT-c", OrderID: "ORD-1", Capacity: 25, Status: models.PalletStatusCompleted, CreatedAt: base.Add(-time.Hour)},
		{ID: "PLT-d", OrderID: "ORD-2", Capacity: 26, Status: models.PalletStatusInProgress, CreatedAt: base.Add(-time.Hour)},
	}
	for _, p := range pallets {
		if err := s.CreatePallet(ctx, p); err != nil {
			t.Fatalf("creating pallet %s: %v", p.ID, err)
		}
	}

	open, err := s.FindOpenPallet(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("finding open pallet: %v", err)
	}
	if open == nil || open.ID != "PLT-a" {
		t.Fatalf("expected PLT-a, got %+v", open)
	}

	missing, err := s.FindOpenPallet(ctx, "ORD-9")
	if err != nil {
		t.Fatalf("finding pallet for unknown order: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for an order with no pallets, got %+v", missing)
	}
}

func TestApplyAssignmentRejectsTakenPosition(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	panelA := &models.Panel{SerialNumber: "CRS25WT36-00001", PanelType: 36, Line: "A", Status: models.PanelStatusCompleted, OrderID: "ORD-1"}
	panelB := &models.Panel{SerialNumber: "CRS25WT36-00002", PanelType: 36, Line: "A", Status: models.PanelStatusCompleted, OrderID: "ORD-1"}
	pallet := &models.Pallet{ID: "PLT-a", OrderID: "ORD-1", Capacity: 25, Status: models.PalletStatusInProgress}
	for _, err := range []error{s.CreatePanel(ctx, panelA), s.CreatePanel(ctx, panelB), s.CreatePallet(ctx, pallet)} {
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	first := &models.PalletAssignment{PalletID: pallet.ID, PanelSerial: panelA.SerialNumber, PosX: 0, PosY: 0}
	if err := s.ApplyAssignment(ctx, pallet, first, panelA); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("assignment id was not allocated")
	}

	clash := &models.PalletAssignment{PalletID: pallet.ID, PanelSerial: panelB.SerialNumber, PosX: 0, PosY: 0}
	err := s.ApplyAssignment(ctx, pallet, clash, panelB)
	if !workflow.IsKind(err, workflow.KindPrecondViolation) {
		t.Fatalf("expected position clash error, got %v", err)
	}
}
