package srvreg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/station"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

const orderDateLayout = "2006-01-02"

// statusForKind maps workflow error kinds onto HTTP status codes.
func statusForKind(kind workflow.Kind) int {
	switch kind {
	case workflow.KindMalformedInput, workflow.KindValueOutOfRange:
		return http.StatusBadRequest
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindDuplicateIdentifier, workflow.KindDuplicateInspection, workflow.KindAlreadyClosed:
		return http.StatusConflict
	case workflow.KindPrecondViolation, workflow.KindNotCompleted,
		workflow.KindPalletClosed, workflow.KindPalletFull:
		return http.StatusUnprocessableEntity
	case workflow.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (sr *ServiceRegistry) errorResponse(err error) (*Response, error) {
	kind := workflow.KindOf(err)
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"code":  string(kind),
	})
	return &Response{
		StatusCode: statusForKind(kind),
		Headers:    defaultHeaders,
		Body:       string(payload),
	}, err
}

func (sr *ServiceRegistry) jsonResponse(status int, payload interface{}) (*Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       `{"error":"Failed to encode response"}`,
		}, nil
	}
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(raw),
	}, nil
}

func (sr *ServiceRegistry) badBody(err error) (*Response, error) {
	sr.logger.Info("Failed to parse body", "error", err.Error())
	return &Response{
		StatusCode: http.StatusUnprocessableEntity,
		Headers:    defaultHeaders,
		Body:       fmt.Sprintf(`{"error":"Invalid body format: %s"}`, err.Error()),
	}, fmt.Errorf("invalid body format")
}

type scanPanelHandlerBody struct {
	SerialCode string `json:"serial_code"`
	OrderID    string `json:"order_id"`
}

// ScanPanelHandler creates a panel on first scan of its barcode, or
// re-admits a rework panel at the station where it failed.
func (sr *ServiceRegistry) ScanPanelHandler(req *Request) (*Response, error) {
	var body scanPanelHandlerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return sr.badBody(err)
	}
	if body.SerialCode == "" {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"serial_code is required"}`,
		}, fmt.Errorf("serial_code is required")
	}

	result, err := sr.engine.ScanPanel(context.Background(), body.SerialCode, body.OrderID)
	if err != nil {
		return sr.errorResponse(err)
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return sr.jsonResponse(status, map[string]interface{}{
		"panel":      result.Panel,
		"created":    result.Created,
		"readmitted": result.Readmitted,
	})
}

// PanelHistoryHandler returns a panel with its full inspection record.
func (sr *ServiceRegistry) PanelHistoryHandler(req *Request) (*Response, error) {
	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 3 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	serial := pathParts[2]

	panel, inspections, err := sr.engine.PanelHistory(context.Background(), serial)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{
		"panel":       panel,
		"inspections": inspections,
	})
}

type electricalBody struct {
	Wattage *float64 `json:"wattage"`
	Vmp     *float64 `json:"vmp"`
	Imp     *float64 `json:"imp"`
}

type recordInspectionHandlerBody struct {
	StationID      int             `json:"station_id"`
	InspectorID    string          `json:"inspector_id"`
	Result         string          `json:"result"`
	FailedCriteria []string        `json:"failed_criteria"`
	Notes          string          `json:"notes"`
	Electrical     *electricalBody `json:"electrical"`
}

// RecordInspectionHandler records one station inspection and drives the
// panel's lifecycle transition.
func (sr *ServiceRegistry) RecordInspectionHandler(req *Request) (*Response, error) {
	var body recordInspectionHandlerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return sr.badBody(err)
	}

	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 4 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	serial := pathParts[2]

	in := workflow.InspectionInput{
		PanelSerial:    serial,
		StationID:      body.StationID,
		InspectorID:    body.InspectorID,
		Result:         body.Result,
		FailedCriteria: body.FailedCriteria,
		Notes:          body.Notes,
	}
	if body.Electrical != nil {
		in.Electrical = &workflow.ElectricalReadings{
			Wattage: body.Electrical.Wattage,
			Vmp:     body.Electrical.Vmp,
			Imp:     body.Electrical.Imp,
		}
	}

	insp, err := sr.engine.RecordInspection(context.Background(), in)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusCreated, map[string]interface{}{
		"message":    "Inspection recorded",
		"inspection": insp,
	})
}

// PanelJournalHandler returns the append-only audit trail for a panel.
func (sr *ServiceRegistry) PanelJournalHandler(req *Request) (*Response, error) {
	if sr.journal == nil {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    defaultHeaders,
			Body:       `{"error":"Journal is not enabled"}`,
		}, fmt.Errorf("journal is not enabled")
	}

	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 4 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	serial := pathParts[2]

	entries, err := sr.journal.PanelHistory(serial)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       `{"error":"Failed to read journal"}`,
		}, err
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{
		"serial":  serial,
		"entries": entries,
	})
}

type createOrderHandlerBody struct {
	OrderID   string `json:"order_id"`
	PanelType int    `json:"panel_type"`
	TargetQty int    `json:"target_qty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// CreateOrderHandler registers a manufacturing order from the planning
// system. Dates use the YYYY-MM-DD layout.
func (sr *ServiceRegistry) CreateOrderHandler(req *Request) (*Response, error) {
	var body createOrderHandlerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return sr.badBody(err)
	}

	startDate, err := time.Parse(orderDateLayout, body.StartDate)
	if err != nil {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"start_date must use YYYY-MM-DD"}`,
		}, fmt.Errorf("bad start_date")
	}
	endDate, err := time.Parse(orderDateLayout, body.EndDate)
	if err != nil {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"end_date must use YYYY-MM-DD"}`,
		}, fmt.Errorf("bad end_date")
	}

	order := &models.ManufacturingOrder{
		ID:        body.OrderID,
		PanelType: body.PanelType,
		TargetQty: body.TargetQty,
		StartDate: startDate,
		EndDate:   endDate,
	}
	if err := sr.engine.CreateOrder(context.Background(), order); err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusCreated, map[string]interface{}{
		"message": "Order created",
		"order":   order,
	})
}

// OrderProgressHandler returns an order with its panels.
func (sr *ServiceRegistry) OrderProgressHandler(req *Request) (*Response, error) {
	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 3 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	orderID := pathParts[2]

	order, panels, err := sr.engine.OrderProgress(context.Background(), orderID)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{
		"order":     order,
		"panels":    panels,
		"remaining": order.Remaining(),
	})
}

type updateOrderStatusHandlerBody struct {
	Status string `json:"status"`
}

// UpdateOrderStatusHandler applies planner-driven status changes. Completion
// is reserved for the order tracker and rejected here.
func (sr *ServiceRegistry) UpdateOrderStatusHandler(req *Request) (*Response, error) {
	var body updateOrderStatusHandlerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return sr.badBody(err)
	}

	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 4 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	orderID := pathParts[2]

	order, err := sr.engine.UpdateOrderStatus(context.Background(), orderID, body.Status)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{
		"message": "Order status updated",
		"order":   order,
	})
}

type assignPalletHandlerBody struct {
	PanelSerial string `json:"panel_serial"`
	PalletID    string `json:"pallet_id"`
	Capacity    int    `json:"capacity"`
}

// AssignPalletHandler places a completed panel on a pallet. An empty
// pallet_id auto-selects the order's open pallet or opens a new one.
func (sr *ServiceRegistry) AssignPalletHandler(req *Request) (*Response, error) {
	var body assignPalletHandlerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return sr.badBody(err)
	}
	if body.PanelSerial == "" {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"panel_serial is required"}`,
		}, fmt.Errorf("panel_serial is required")
	}

	asg, err := sr.engine.Pallets().Assign(context.Background(), workflow.AssignInput{
		PanelSerial: body.PanelSerial,
		PalletID:    body.PalletID,
		Capacity:    body.Capacity,
	})
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusCreated, map[string]interface{}{
		"message":    "Panel palletized",
		"assignment": asg,
	})
}

// ClosePalletHandler closes a pallet below capacity on operator intent.
func (sr *ServiceRegistry) ClosePalletHandler(req *Request) (*Response, error) {
	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 4 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	palletID := pathParts[2]

	pallet, err := sr.engine.Pallets().CloseManually(context.Background(), palletID)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{
		"message": "Pallet closed",
		"pallet":  pallet,
	})
}

// PalletManifestHandler returns the shipping manifest for a pallet.
func (sr *ServiceRegistry) PalletManifestHandler(req *Request) (*Response, error) {
	pathParts := strings.Split(req.Path, "/")
	if len(pathParts) != 3 {
		return &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    defaultHeaders,
			Body:       `{"error":"Invalid path format"}`,
		}, fmt.Errorf("invalid path format")
	}
	palletID := pathParts[2]

	manifest, err := sr.engine.Pallets().BuildManifest(context.Background(), palletID)
	if err != nil {
		return sr.errorResponse(err)
	}
	return sr.jsonResponse(http.StatusOK, manifest)
}

// ListStationsHandler returns the static station registry with criteria.
func (sr *ServiceRegistry) ListStationsHandler(_ *Request) (*Response, error) {
	type criterionView struct {
		Description string `json:"description"`
		Kind        string `json:"kind"`
		Line        string `json:"line,omitempty"`
	}
	type stationView struct {
		ID       int             `json:"id"`
		Stage    string          `json:"stage"`
		Criteria []criterionView `json:"criteria"`
	}

	var stations []stationView
	for _, def := range station.All() {
		view := stationView{ID: def.ID, Stage: string(def.Stage)}
		for _, crit := range def.Criteria {
			view.Criteria = append(view.Criteria, criterionView{
				Description: crit.Description,
				Kind:        string(crit.Kind),
				Line:        crit.Line,
			})
		}
		stations = append(stations, view)
	}
	return sr.jsonResponse(http.StatusOK, map[string]interface{}{"stations": stations})
}
