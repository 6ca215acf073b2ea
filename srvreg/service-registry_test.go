package srvreg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/memory"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

func newTestRegistry(t *testing.T) *ServiceRegistry {
	t.Helper()
	store := memory.NewStore()
	bus := workflow.NewBus()
	engine, err := workflow.NewEngine(store, bus, cmtlog.NewNopLogger(), workflow.Config{})
	require.NoError(t, err)

	sr := NewServiceRegistry(engine, nil, cmtlog.NewNopLogger())
	sr.RegisterDefaultServices()
	return sr
}

func doRequest(t *testing.T, sr *ServiceRegistry, method, path, body string) *Response {
	t.Helper()
	req := &Request{
		Method:    method,
		Path:      path,
		Body:      body,
		Timestamp: time.Now(),
	}
	req.GenerateRequestID()
	resp, _ := req.GenerateResponse(sr)
	require.NotNil(t, resp)
	return resp
}

func TestMatchPath(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/panel/:serial", "/panel/CRS25WT36-00042", true},
		{"/panel/:serial", "/panel/CRS25WT36-00042/inspection", false},
		{"/panel/:serial/inspection", "/panel/CRS25WT36-00042/inspection", true},
		{"/order/:id/status", "/order/ORD-1/status", true},
		{"/order/:id/status", "/pallet/ORD-1/status", false},
	}
	for _, c := range cases {
		if got := matchPath(c.pattern, c.path); got != c.want {
			t.Fatalf("matchPath(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	sr := newTestRegistry(t)
	resp := doRequest(t, sr, "GET", "/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanAndInspectOverRegistry(t *testing.T) {
	sr := newTestRegistry(t)

	start := time.Now().Format(orderDateLayout)
	end := time.Now().AddDate(0, 1, 0).Format(orderDateLayout)
	orderBody := fmt.Sprintf(`{"order_id":"ORD-1","panel_type":36,"target_qty":5,"start_date":"%s","end_date":"%s"}`, start, end)
	resp := doRequest(t, sr, "POST", "/order", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, sr, "POST", "/panel/scan", `{"serial_code":"CRS25WT36-00042","order_id":"ORD-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate scan maps to 409.
	resp = doRequest(t, sr, "POST", "/panel/scan", `{"serial_code":"CRS25WT36-00042","order_id":"ORD-1"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errPayload map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &errPayload))
	require.Equal(t, string(workflow.KindDuplicateIdentifier), errPayload["code"])

	resp = doRequest(t, sr, "POST", "/panel/CRS25WT36-00042/inspection",
		`{"station_id":1,"inspector_id":"INSP-001","result":"pass"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Out-of-order station maps to 422.
	resp = doRequest(t, sr, "POST", "/panel/CRS25WT36-00042/inspection",
		`{"station_id":3,"inspector_id":"INSP-001","result":"pass"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doRequest(t, sr, "GET", "/panel/CRS25WT36-00042", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history struct {
		Panel       models.Panel        `json:"panel"`
		Inspections []models.Inspection `json:"inspections"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &history))
	require.Equal(t, models.PanelStatusInProgress, history.Panel.Status)
	require.Len(t, history.Inspections, 1)
}

func TestUnknownPanelMapsToNotFound(t *testing.T) {
	sr := newTestRegistry(t)
	resp := doRequest(t, sr, "GET", "/panel/CRS25WT36-09999", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadElectricalReadingMapsToBadRequest(t *testing.T) {
	sr := newTestRegistry(t)

	start := time.Now().Format(orderDateLayout)
	end := time.Now().AddDate(0, 1, 0).Format(orderDateLayout)
	doRequest(t, sr, "POST", "/order",
		fmt.Sprintf(`{"order_id":"ORD-1","panel_type":36,"target_qty":5,"start_date":"%s","end_date":"%s"}`, start, end))
	doRequest(t, sr, "POST", "/panel/scan", `{"serial_code":"CRS25WT36-00042","order_id":"ORD-1"}`)
	for st := 1; st <= 3; st++ {
		resp := doRequest(t, sr, "POST", "/panel/CRS25WT36-00042/inspection",
			fmt.Sprintf(`{"station_id":%d,"inspector_id":"INSP-001","result":"pass"}`, st))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doRequest(t, sr, "POST", "/panel/CRS25WT36-00042/inspection",
		`{"station_id":4,"inspector_id":"INSP-001","result":"pass","electrical":{"wattage":1200,"vmp":32.5,"imp":9.1}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStationsEndpointListsRegistry(t *testing.T) {
	sr := newTestRegistry(t)
	resp := doRequest(t, sr, "GET", "/stations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Stations []struct {
			ID    int    `json:"id"`
			Stage string `json:"stage"`
		} `json:"stations"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &payload))
	require.Len(t, payload.Stations, 4)
	require.Equal(t, "performance_final", payload.Stations[3].Stage)
}
