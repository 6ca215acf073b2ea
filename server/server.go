// Package server exposes the production tracking operations over HTTP. The
// server converts incoming requests into registry requests, dispatches them
// through the service registry and writes the JSON reply.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	service_registry "github.com/quality-dot/solar-panel-production-tracking-sub010/srvreg"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          cmtlog.Logger
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	bus             *workflow.Bus
}

// ClientResponse is the response format sent to clients
type ClientResponse struct {
	StatusCode int               `json:"-"` // Not included in JSON
	Headers    map[string]string `json:"-"` // Not included in JSON
	Body       interface{}       `json:"body"`
	RequestID  string            `json:"request_id"`
	ServedAt   time.Time         `json:"served_at"`
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, logger cmtlog.Logger, serviceRegistry *service_registry.ServiceRegistry, bus *workflow.Bus) (*WebServer, error) {
	mux := http.NewServeMux()

	server := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: mux,
		},
		logger:          logger,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		bus:             bus,
	}

	// Register routes
	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/debug", server.handleDebug)
	// Workflow endpoints
	mux.HandleFunc("/panel/", server.handleAPI)
	mux.HandleFunc("/order", server.handleAPI)
	mux.HandleFunc("/order/", server.handleAPI)
	mux.HandleFunc("/pallet/", server.handleAPI)
	mux.HandleFunc("/stations", server.handleAPI)

	return server, nil
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot handles the root endpoint which shows service status
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html")

	w.Write([]byte("<h1>Solar Panel Production Tracking Node</h1>"))
	w.Write([]byte("<p>Uptime: " + time.Since(ws.startTime).String() + "</p>"))
	w.Write([]byte("<p>See <a href=\"/stations\">/stations</a> for the station registry.</p>"))
}

// handleDebug provides debugging information
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := ws.bus.Stats()
	debugInfo := map[string]interface{}{
		"status":           "online",
		"uptime":           time.Since(ws.startTime).String(),
		"events_published": stats.Published,
		"events_delivered": stats.Delivered,
		"events_failed":    stats.Failed,
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(debugInfo); err != nil {
		JSONError(w, "Error encoding response: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleAPI dispatches workflow requests through the service registry.
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Error("Failed to generate request ID", "err", err)
		return
	}

	request, err := service_registry.ConvertHttpRequest(r, requestID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to convert HTTP request", "err", err)
		return
	}

	response, _ := request.GenerateResponse(ws.serviceRegistry)
	if response == nil {
		JSONError(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	apiResponse := ClientResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Headers,
		Body:       parseBody(response.Body),
		RequestID:  requestID,
		ServedAt:   time.Now(),
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.StatusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(apiResponse); err != nil {
		ws.logger.Error("Failed to encode client response", "err", err)
	}

	ws.logger.Info("=== Req-Res Pair Result ===",
		"path", request.Path,
		"method", request.Method,
		"status", response.StatusCode,
	)
}

// parseBody attempts to parse a handler body as JSON, falling back to the
// raw string.
func parseBody(body string) interface{} {
	if body == "" {
		return nil
	}

	var bodyMap map[string]interface{}
	if err := json.Unmarshal([]byte(body), &bodyMap); err == nil {
		return bodyMap
	}

	var bodyArray []interface{}
	if err := json.Unmarshal([]byte(body), &bodyArray); err == nil {
		return bodyArray
	}

	return body
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, message), statusCode)
		return
	}

	// Set content type and status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Write JSON response
	w.Write(jsonBytes)
}
