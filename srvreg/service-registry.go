// Package srvreg maps HTTP requests onto workflow operations. Routes are
// registered as exact paths or ":param" patterns and resolved by the web
// server through GenerateResponse.
package srvreg

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/journal"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

// Request represents the client's original HTTP request.
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// GenerateRequestID generates a deterministic ID for the request.
func (r *Request) GenerateRequestID() {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s-%s-%s-%s", r.Path, r.Method, r.Body, r.Timestamp)))
	r.RequestID = hex.EncodeToString(hasher.Sum(nil)[:16])
}

// Response is the computed reply for a request.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Error      string            `json:"error,omitempty"`
}

// ServiceHandler is a function type for service handlers.
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route.
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry manages all service handlers.
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool // Whether a route is exact or pattern-based
	mu          sync.RWMutex
	engine      *workflow.Engine
	journal     *journal.Journal
	logger      cmtlog.Logger
}

// ConvertHttpRequest converts an http.Request to a registry Request.
func ConvertHttpRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(string(bodyBytes))
		body = compactJSON(raw)
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}, nil
}

// NewServiceRegistry creates a new service registry. The journal may be nil
// when audit history is disabled.
func NewServiceRegistry(engine *workflow.Engine, jrnl *journal.Journal, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		engine:      engine,
		journal:     jrnl,
		logger:      logger,
	}
}

// RegisterHandler registers a new service handler.
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path and a
// boolean of whether or not the handler was found.
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	// Try exact match first
	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, true
		}
	}

	// Try pattern matching
	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}

		// Skip exact routes in pattern matching
		if sr.exactRoutes[routeKey] {
			continue
		}

		if matchPath(routeKey.Path, path) {
			return handler, true
		}
	}

	return nil, false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/panel/:serial" matching "/panel/CRS25WT36-00042"
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := 0; i < len(patternParts); i++ {
		if strings.HasPrefix(patternParts[i], ":") {
			// This is a parameter part, it matches anything
			continue
		}

		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// RegisterDefaultServices sets up the production tracking endpoints.
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Panel lifecycle
	sr.RegisterHandler("POST", "/panel/scan", true, sr.ScanPanelHandler)
	sr.RegisterHandler("GET", "/panel/:serial", false, sr.PanelHistoryHandler)
	sr.RegisterHandler("POST", "/panel/:serial/inspection", false, sr.RecordInspectionHandler)
	sr.RegisterHandler("GET", "/panel/:serial/journal", false, sr.PanelJournalHandler)

	// Manufacturing orders
	sr.RegisterHandler("POST", "/order", true, sr.CreateOrderHandler)
	sr.RegisterHandler("GET", "/order/:id", false, sr.OrderProgressHandler)
	sr.RegisterHandler("PUT", "/order/:id/status", false, sr.UpdateOrderStatusHandler)

	// Pallets
	sr.RegisterHandler("POST", "/pallet/assign", true, sr.AssignPalletHandler)
	sr.RegisterHandler("POST", "/pallet/:id/close", false, sr.ClosePalletHandler)
	sr.RegisterHandler("GET", "/pallet/:id", false, sr.PalletManifestHandler)

	// Reference data
	sr.RegisterHandler("GET", "/stations", true, sr.ListStationsHandler)
}

// GenerateResponse executes the request and generates a response.
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		services.logger.Info("no handler registered", "method", req.Method, "path", req.Path)
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       fmt.Sprintf("Service not found for %s %s", req.Method, req.Path),
		}, nil
	}

	return handler(req)
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		// If it's not JSON, return trimmed original
		return strings.TrimSpace(body)
	}
	return buf.String()
}
