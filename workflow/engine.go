// Package workflow implements the production workflow engine: the panel
// lifecycle state machine, the inspection recorder, the rework router, the
// order tracker and the pallet manager. The engine owns every panel, order
// and pallet mutation; the HTTP layer and storage implementations stay
// policy-free.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/barcode"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/station"
)

// Config tunes the engine. Zero values fall back to the defaults below.
type Config struct {
	// LowStockThreshold is the remaining-to-target count that triggers the
	// one-shot order alert.
	LowStockThreshold int
	// DefaultCapacityLineA / LineB size auto-opened pallets.
	DefaultCapacityLineA int
	DefaultCapacityLineB int
	// OrderDateWindow bounds how far order start/end dates may sit from the
	// current date.
	OrderDateWindow time.Duration
}

func (c *Config) withDefaults() {
	if c.LowStockThreshold == 0 {
		c.LowStockThreshold = 50
	}
	if c.DefaultCapacityLineA == 0 {
		c.DefaultCapacityLineA = models.DefaultCapacityLineA
	}
	if c.DefaultCapacityLineB == 0 {
		c.DefaultCapacityLineB = models.DefaultCapacityLineB
	}
	if c.OrderDateWindow == 0 {
		c.OrderDateWindow = 366 * 24 * time.Hour
	}
}

// keyedMutex hands out one mutex per aggregate key so operations on
// different panels, orders and pallets progress independently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Engine drives the production workflow against a Store, publishing every
// lifecycle transition on the Bus.
type Engine struct {
	store  Store
	bus    *Bus
	logger cmtlog.Logger
	cfg    Config

	orders  *OrderTracker
	pallets *PalletManager

	panelMu *keyedMutex
	orderMu *keyedMutex

	now func() time.Time
}

// NewEngine wires the engine, its order tracker and its pallet manager, and
// subscribes the pallet manager to the transition bus. The order tracker is
// not a subscriber: its counter updates commit inside the triggering
// transition's store write.
func NewEngine(store Store, bus *Bus, logger cmtlog.Logger, cfg Config) (*Engine, error) {
	cfg.withDefaults()
	e := &Engine{
		store:   store,
		bus:     bus,
		logger:  logger,
		cfg:     cfg,
		panelMu: newKeyedMutex(),
		orderMu: newKeyedMutex(),
		now:     time.Now,
	}
	e.orders = newOrderTracker(e)
	e.pallets = newPalletManager(e)

	if err := bus.Subscribe("pallet-manager", e.pallets.Handle); err != nil {
		return nil, err
	}
	return e, nil
}

// Pallets exposes the pallet manager operations.
func (e *Engine) Pallets() *PalletManager { return e.pallets }

// publish pushes a transition event to the subscribers. The triggering write
// is already durable at this point; a subscriber failure is logged and
// journaled by the remaining subscribers, never propagated to the caller.
func (e *Engine) publish(ev Event) {
	if errs := e.bus.Publish(ev); len(errs) > 0 {
		for id, err := range errs {
			e.logger.Error("event subscriber failed", "subscriber", id, "event", string(ev.Type), "err", err)
		}
	}
}

// ScanResult reports what a barcode scan did.
type ScanResult struct {
	Panel   *models.Panel
	Created bool
	// Readmitted is true when the scan re-admitted a rework panel at its
	// failed station.
	Readmitted bool
}

// ScanPanel handles a station barcode scan. The first scan of a serial
// creates the panel (Pending, no current station) under the given order; a
// scan of a Rework panel re-admits it at the station where it failed. Any
// other repeat scan is a duplicate.
func (e *Engine) ScanPanel(ctx context.Context, code, orderID string) (*ScanResult, error) {
	id, err := barcode.Decode(code)
	if err != nil {
		return nil, WrapError(KindMalformedInput, err, "%v", err)
	}
	serial := id.Encode()

	unlock := e.panelMu.lock(serial)
	defer unlock()

	panel, err := e.store.GetPanel(ctx, serial)
	switch {
	case err == nil:
		return e.readmitPanel(ctx, panel)
	case !IsKind(err, KindNotFound):
		return nil, err
	}

	// New unit: validate the owning order before creating anything.
	if orderID == "" {
		return nil, NewError(KindMalformedInput, "order_ref", "order id is required on first scan")
	}
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Closed() {
		return nil, NewError(KindPrecondViolation, "order_open",
			"order %s is %s and accepts no new panels", order.ID, order.Status)
	}
	if order.PanelType != id.PanelType {
		return nil, NewError(KindPrecondViolation, "order_panel_type",
			"order %s produces %d-cell panels, serial encodes %d", order.ID, order.PanelType, id.PanelType)
	}

	panel = &models.Panel{
		SerialNumber: serial,
		PanelType:    id.PanelType,
		Line:         id.Line(),
		Status:       models.PanelStatusPending,
		OrderID:      order.ID,
	}
	if err := e.store.CreatePanel(ctx, panel); err != nil {
		return nil, err
	}

	e.logger.Info("panel created", "serial", serial, "line", panel.Line, "order", order.ID)
	e.publish(Event{Type: EventPanelCreated, PanelSerial: serial, OrderID: order.ID, At: e.now()})

	return &ScanResult{Panel: panel, Created: true}, nil
}

// readmitPanel is the rework router's re-entry path: the only transition
// back from Rework to InProgress, landing at the recorded failed station
// rather than station 1.
func (e *Engine) readmitPanel(ctx context.Context, panel *models.Panel) (*ScanResult, error) {
	if panel.Status != models.PanelStatusRework {
		return nil, NewError(KindDuplicateIdentifier, "",
			"panel %s already exists with status %s", panel.SerialNumber, panel.Status)
	}
	if err := readmit(panel); err != nil {
		return nil, err
	}
	if err := e.store.ApplyTransition(ctx, panel, nil, nil); err != nil {
		return nil, err
	}

	e.logger.Info("rework panel re-admitted", "serial", panel.SerialNumber,
		"station", *panel.CurrentStation, "cycle", panel.ReworkCycle)
	e.publish(Event{
		Type:        EventPanelReadmitted,
		PanelSerial: panel.SerialNumber,
		OrderID:     panel.OrderID,
		StationID:   *panel.CurrentStation,
		At:          e.now(),
		Detail:      map[string]string{"reason": panel.ReworkReason},
	})
	return &ScanResult{Panel: panel, Readmitted: true}, nil
}

// InspectionInput is one station's inspection submission.
type InspectionInput struct {
	PanelSerial    string
	StationID      int
	InspectorID    string
	Result         string
	FailedCriteria []string
	Notes          string
	Electrical     *ElectricalReadings
}

func (in *InspectionInput) validateShape(line string) error {
	switch in.Result {
	case models.ResultPass, models.ResultFail, models.ResultCosmeticDefect, models.ResultRework:
	default:
		return NewError(KindMalformedInput, "result", "unknown inspection result %q", in.Result)
	}
	if in.InspectorID == "" {
		return NewError(KindMalformedInput, "inspector_ref", "inspector id is required")
	}

	// Failure documentation: Fail, CosmeticDefect and Rework all require
	// non-empty notes (for Rework the notes double as the rework reason).
	if in.Result != models.ResultPass && in.Notes == "" {
		return NewError(KindMalformedInput, "failure_notes",
			"%s results require non-empty notes", in.Result)
	}

	if in.Result == models.ResultPass && len(in.FailedCriteria) > 0 {
		return NewError(KindMalformedInput, "failed_criteria",
			"a passing inspection cannot list failed criteria")
	}
	if len(in.FailedCriteria) > 0 {
		def, ok := station.Lookup(in.StationID)
		if !ok {
			return NewError(KindInternal, "", "station %d does not exist", in.StationID)
		}
		for _, crit := range in.FailedCriteria {
			if !def.HasCriterion(line, crit) {
				return NewError(KindMalformedInput, "failed_criteria",
					"criterion %q is not checked at station %d on line %s", crit, in.StationID, line)
			}
		}
	}

	if in.Electrical != nil {
		if err := in.Electrical.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RecordInspection validates and persists one inspection result, then drives
// the panel's lifecycle transition. The guard check and the write commit as
// a single serializable operation per panel: of two conflicting concurrent
// attempts, exactly one succeeds.
func (e *Engine) RecordInspection(ctx context.Context, in InspectionInput) (*models.Inspection, error) {
	if _, ok := station.Lookup(in.StationID); !ok {
		return nil, NewError(KindInternal, "", "station %d does not exist", in.StationID)
	}

	unlock := e.panelMu.lock(in.PanelSerial)
	defer unlock()

	panel, err := e.store.GetPanel(ctx, in.PanelSerial)
	if err != nil {
		return nil, err
	}

	// All validation happens before any mutation.
	if err := in.validateShape(panel.Line); err != nil {
		return nil, err
	}
	if err := checkPanelAcceptsInspection(panel); err != nil {
		return nil, err
	}
	inspections, err := e.store.ListInspections(ctx, panel.SerialNumber)
	if err != nil {
		return nil, err
	}
	if err := checkNoDuplicateInspection(inspections, in.StationID, panel.ReworkCycle); err != nil {
		return nil, err
	}
	if err := checkProgression(inspections, in.StationID); err != nil {
		return nil, err
	}

	if in.Electrical != nil {
		applyReadings(panel, in.Electrical)
	}

	now := e.now()
	var eventType EventType
	switch in.Result {
	case models.ResultPass:
		if err := applyPass(panel, in.StationID, now); err != nil {
			return nil, err
		}
		eventType = EventStationPassed
		if panel.Status == models.PanelStatusCompleted {
			eventType = EventPanelCompleted
		}
	case models.ResultFail, models.ResultCosmeticDefect:
		applyFailure(panel, in.StationID, in.Notes)
		eventType = EventPanelFailed
	case models.ResultRework:
		applyRework(panel, in.StationID, in.Notes)
		eventType = EventPanelRework
	}

	insp := &models.Inspection{
		ID:             inspectionID(panel.SerialNumber, in.StationID, panel.ReworkCycle),
		PanelSerial:    panel.SerialNumber,
		StationID:      in.StationID,
		Attempt:        panel.ReworkCycle,
		InspectorID:    in.InspectorID,
		Result:         in.Result,
		FailedCriteria: marshalCriteria(in.FailedCriteria),
		Notes:          in.Notes,
	}

	// Completions and failures move the owning order's counters. The update
	// is computed here, under the order lock, and committed in the same store
	// write as the panel transition: a storage failure loses neither half.
	var (
		order     *models.ManufacturingOrder
		completed bool
		lowStock  bool
	)
	if eventType == EventPanelCompleted || eventType == EventPanelFailed {
		unlockOrder := e.orderMu.lock(panel.OrderID)
		defer unlockOrder()

		order, err = e.store.GetOrder(ctx, panel.OrderID)
		if err != nil {
			return nil, err
		}
		if eventType == EventPanelCompleted {
			order, completed, lowStock = e.orders.recordCompletion(order, panel.SerialNumber)
		} else {
			e.orders.recordFailure(order)
		}
	}

	if err := e.store.ApplyTransition(ctx, panel, insp, order); err != nil {
		return nil, err
	}

	e.logger.Info("inspection recorded", "serial", panel.SerialNumber,
		"station", in.StationID, "result", in.Result, "status", panel.Status)
	e.publish(Event{
		Type:        eventType,
		PanelSerial: panel.SerialNumber,
		OrderID:     panel.OrderID,
		StationID:   in.StationID,
		At:          now,
		Detail:      map[string]string{"result": in.Result, "inspection_id": insp.ID},
	})

	if lowStock {
		e.logger.Info("order approaching target", "order", order.ID,
			"remaining", order.Remaining(), "threshold", e.cfg.LowStockThreshold)
		e.publish(Event{Type: EventOrderLowStock, OrderID: order.ID, At: now,
			Detail: map[string]string{"remaining": strconv.Itoa(order.Remaining())}})
	}
	if completed {
		e.logger.Info("order completed", "order", order.ID, "target", order.TargetQty)
		e.publish(Event{Type: EventOrderCompleted, OrderID: order.ID, At: now})
	}

	return insp, nil
}

func applyReadings(panel *models.Panel, r *ElectricalReadings) {
	if r.Wattage != nil {
		panel.Wattage = r.Wattage
	}
	if r.Vmp != nil {
		panel.Vmp = r.Vmp
	}
	if r.Imp != nil {
		panel.Imp = r.Imp
	}
}

// inspectionID derives a stable id from the panel, station and rework cycle.
func inspectionID(serial string, stationID, attempt int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", serial, stationID, attempt)))
	return fmt.Sprintf("INS-%s", hex.EncodeToString(hash[:])[:16])
}

func marshalCriteria(criteria []string) string {
	if len(criteria) == 0 {
		return ""
	}
	raw, err := json.Marshal(criteria)
	if err != nil {
		return ""
	}
	return string(raw)
}

// CreateOrder registers a manufacturing order from the planning system. The
// date range is validated here and immutable afterwards.
func (e *Engine) CreateOrder(ctx context.Context, order *models.ManufacturingOrder) error {
	if order.ID == "" {
		return NewError(KindMalformedInput, "order_id", "order id is required")
	}
	if _, ok := barcode.LineForType(order.PanelType); !ok {
		return NewError(KindMalformedInput, "panel_type", "%d is not a known cell count", order.PanelType)
	}
	if order.TargetQty <= 0 {
		return NewError(KindMalformedInput, "target_qty", "target quantity must be positive, got %d", order.TargetQty)
	}
	if order.StartDate.After(order.EndDate) {
		return NewError(KindMalformedInput, "order_dates", "start date is after end date")
	}
	now := e.now()
	for _, d := range []time.Time{order.StartDate, order.EndDate} {
		if d.Before(now.Add(-e.cfg.OrderDateWindow)) || d.After(now.Add(e.cfg.OrderDateWindow)) {
			return NewError(KindMalformedInput, "order_dates", "order dates must fall within %s of today", e.cfg.OrderDateWindow)
		}
	}

	order.Status = models.OrderStatusPending
	order.CompletedCount = 0
	order.FailedCount = 0
	order.LowStockNotified = false

	if err := e.store.CreateOrder(ctx, order); err != nil {
		return err
	}
	e.logger.Info("manufacturing order created", "order", order.ID,
		"panel_type", order.PanelType, "target", order.TargetQty)
	return nil
}

// UpdateOrderStatus applies planner-driven status changes. Completed is
// reserved for the order tracker: external attempts are rejected.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.ManufacturingOrder, error) {
	switch status {
	case models.OrderStatusPending, models.OrderStatusInProgress,
		models.OrderStatusCancelled, models.OrderStatusOnHold:
	case models.OrderStatusCompleted:
		return nil, NewError(KindPrecondViolation, "order_autoclose",
			"orders complete automatically when the target quantity is reached")
	default:
		return nil, NewError(KindMalformedInput, "status", "unknown order status %q", status)
	}

	unlock := e.orderMu.lock(orderID)
	defer unlock()

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCompleted {
		return nil, NewError(KindPrecondViolation, "order_autoclose",
			"order %s is completed and immutable", orderID)
	}
	order.Status = status
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	e.logger.Info("order status updated", "order", orderID, "status", status)
	return order, nil
}

// PanelHistory returns the panel with its full inspection record, newest
// cycle last. Read-only.
func (e *Engine) PanelHistory(ctx context.Context, serial string) (*models.Panel, []models.Inspection, error) {
	panel, err := e.store.GetPanel(ctx, serial)
	if err != nil {
		return nil, nil, err
	}
	inspections, err := e.store.ListInspections(ctx, serial)
	if err != nil {
		return nil, nil, err
	}
	return panel, inspections, nil
}

// OrderProgress returns the order with its panels. Read-only.
func (e *Engine) OrderProgress(ctx context.Context, orderID string) (*models.ManufacturingOrder, []models.Panel, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	panels, err := e.store.ListPanelsByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, panels, nil
}
