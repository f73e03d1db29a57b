// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axonflow/insightmesh/adapters/base"
)

// ServerFactory builds a federation server adapter from its config.
// The wiring layer supplies one keyed on config.Type.
type ServerFactory func(config *base.ServerConfig) (base.FederatedServer, error)

// APIQueryRequest is the body of the query endpoints.
type APIQueryRequest struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// RegisterServerRequest is the POST /api/v1/servers body: descriptor
// fields plus the adapter configuration used to build and connect the
// server.
type RegisterServerRequest struct {
	Name            string                 `json:"name"`
	Type            string                 `json:"type"`
	CapabilityTags  []string               `json:"capability_tags"`
	Priority        int                    `json:"priority"`
	TimeoutBudgetMs int64                  `json:"timeout_budget_ms"`
	ConnectionURL   string                 `json:"connection_url"`
	Credentials     map[string]string      `json:"credentials,omitempty"`
	Options         map[string]interface{} `json:"options,omitempty"`
	TimeoutMs       int64                  `json:"timeout_ms,omitempty"`
	MaxRetries      int                    `json:"max_retries,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// apiServer is the HTTP translation layer over one Engine. It owns no
// routing logic; every endpoint is a thin call into the engine.
type apiServer struct {
	engine    *Engine
	factory   ServerFactory
	jwtSecret []byte
}

func newAPIServer(engine *Engine, factory ServerFactory, jwtSecret []byte) *apiServer {
	return &apiServer{
		engine:    engine,
		factory:   factory,
		jwtSecret: jwtSecret,
	}
}

// routes builds the gorilla/mux router. /api/v1 routes pass through the
// JWT middleware; the health, metrics, and prometheus endpoints do not.
func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth)
	api.HandleFunc("/query/route", s.routeQueryHandler).Methods("POST")
	api.HandleFunc("/query/federated", s.federatedQueryHandler).Methods("POST")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	api.HandleFunc("/servers", s.listServersHandler).Methods("GET")
	api.HandleFunc("/servers", s.registerServerHandler).Methods("POST")
	api.HandleFunc("/servers/{name}", s.deregisterServerHandler).Methods("DELETE")

	return r
}

func (s *apiServer) auth(next http.Handler) http.Handler {
	return jwtMiddleware(s.jwtSecret, next)
}

func (s *apiServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Servers()
	servers := make(map[string]string, len(snapshot))
	healthyCount := 0
	for _, desc := range snapshot {
		servers[desc.Name] = string(desc.Health)
		if desc.Health != base.HealthUnhealthy {
			healthyCount++
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "insightmesh-engine",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"components": map[string]interface{}{
			"engines_registered": s.engine.engines.Count(),
			"servers_registered": len(snapshot),
			"servers_healthy":    healthyCount,
		},
		"servers": servers,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *apiServer) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.engine.GetStats()); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *apiServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"stats":     s.engine.GetStats(),
		"servers":   s.engine.Servers(),
		"engines":   s.engine.engines.Names(),
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *apiServer) routeQueryHandler(w http.ResponseWriter, r *http.Request) {
	s.handleQuery(w, r, "route")
}

func (s *apiServer) federatedQueryHandler(w http.ResponseWriter, r *http.Request) {
	s.handleQuery(w, r, "federated")
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request, mode string) {
	var req APIQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queryContext := req.Context
	if auth := authFromContext(r.Context()); auth != nil {
		if queryContext == nil {
			queryContext = make(map[string]interface{})
		}
		if auth.UserID != "" {
			queryContext["user_id"] = auth.UserID
		}
		if auth.TenantID != "" {
			queryContext["tenant_id"] = auth.TenantID
		}
	}

	if r.URL.Query().Get("stream") == "true" {
		s.streamQuery(w, r, mode, req.Query, queryContext)
		return
	}

	var result *AggregatedResult
	var err error
	if mode == "federated" {
		result, err = s.engine.FederatedQuery(r.Context(), req.Query, queryContext)
	} else {
		result, err = s.engine.RouteQuery(r.Context(), req.Query, queryContext)
	}
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// streamQuery upgrades the response to Server-Sent Events and forwards
// the StreamEvent sequence as it arrives.
func (s *apiServer) streamQuery(w http.ResponseWriter, r *http.Request, mode, query string, queryContext map[string]interface{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendErrorResponse(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var events <-chan StreamEvent
	var err error
	if mode == "federated" {
		events, err = s.engine.FederatedQueryStream(r.Context(), query, queryContext)
	} else {
		events, err = s.engine.RouteQueryStream(r.Context(), query, queryContext)
	}
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Error encoding stream event: %v", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}

func (s *apiServer) listServersHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"servers": s.engine.Servers(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *apiServer) registerServerHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Type == "" {
		sendErrorResponse(w, "Server name and type are required", http.StatusBadRequest)
		return
	}
	if s.factory == nil {
		sendErrorResponse(w, "Server registration is not enabled", http.StatusNotImplemented)
		return
	}

	config := &base.ServerConfig{
		Name:          req.Name,
		Type:          req.Type,
		ConnectionURL: req.ConnectionURL,
		Credentials:   req.Credentials,
		Options:       req.Options,
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
		MaxRetries:    req.MaxRetries,
	}

	server, err := s.factory(config)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := server.Connect(r.Context(), config); err != nil {
		sendErrorResponse(w, fmt.Sprintf("failed to connect server '%s': %v", req.Name, err), http.StatusBadGateway)
		return
	}

	desc := &base.ServerDescriptor{
		Name:            req.Name,
		CapabilityTags:  req.CapabilityTags,
		Priority:        req.Priority,
		TimeoutBudgetMs: req.TimeoutBudgetMs,
	}

	if err := s.engine.RegisterServer(desc, server); err != nil {
		if closeErr := server.Close(r.Context()); closeErr != nil {
			log.Printf("Error closing rejected server %s: %v", req.Name, closeErr)
		}
		sendErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"server":  desc,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *apiServer) deregisterServerHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.engine.DeregisterServer(name); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"name":    name,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Utility functions
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := errorResponse{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
