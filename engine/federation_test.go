// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/registry"
)

// fakeServer is a scripted FederatedServer for dispatch tests. With
// ignoreCancel set it sleeps out its full delay regardless of the
// context, like an adapter blocked in a driver call.
type fakeServer struct {
	name         string
	payload      interface{}
	confidence   float64
	err          error
	nilReply     bool
	delay        time.Duration
	ignoreCancel bool

	mu        sync.Mutex
	lastReq   *base.QueryRequest
	execCalls int
	closed    bool
}

func (f *fakeServer) Connect(ctx context.Context, config *base.ServerConfig) error { return nil }

func (f *fakeServer) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeServer) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	f.mu.Lock()
	f.lastReq = req
	f.execCalls++
	f.mu.Unlock()

	if f.delay > 0 {
		if f.ignoreCancel {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.nilReply {
		return nil, nil
	}
	return &base.QueryResponse{Payload: f.payload, Confidence: f.confidence}, nil
}

func (f *fakeServer) Name() string           { return f.name }
func (f *fakeServer) Type() string           { return "fake" }
func (f *fakeServer) Version() string        { return "1.0.0" }
func (f *fakeServer) Capabilities() []string { return []string{"query"} }

func (f *fakeServer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execCalls
}

func (f *fakeServer) request() *base.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// probingFakeServer adds a scripted health probe.
type probingFakeServer struct {
	fakeServer
	status   *base.HealthStatus
	probeErr error
}

func (p *probingFakeServer) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if p.probeErr != nil {
		return nil, p.probeErr
	}
	return p.status, nil
}

func newTestDispatcher(config *RoutingConfig, reg *registry.ServerRegistry) *FederationDispatcher {
	classifier := NewQueryClassifier(config)
	aggregator := NewResultAggregator(config.AggregationWeights)
	return NewFederationDispatcher(classifier, reg, aggregator, config)
}

func registerFake(t *testing.T, reg *registry.ServerRegistry, server base.FederatedServer, priority int, tags ...string) {
	t.Helper()
	desc := &base.ServerDescriptor{
		Name:           server.Name(),
		CapabilityTags: tags,
		Priority:       priority,
	}
	if err := reg.Register(desc, server); err != nil {
		t.Fatalf("Failed to register server %s: %v", server.Name(), err)
	}
}

// riskQuery matches no category pattern, so classification falls back to
// semantic search; "risk" and "exposure" put risk-tagged servers on the
// priority list.
const riskQuery = "show risk exposure for acme"

func TestDispatch_AggregatesAcrossServers(t *testing.T) {
	reg := registry.NewServerRegistry()
	strong := &fakeServer{name: "risk-watch", payload: map[string]interface{}{"answer": "high exposure"}, confidence: 0.9}
	weak := &fakeServer{name: "crm", payload: "", confidence: 0.1}
	registerFake(t, reg, strong, 1, "risk")
	registerFake(t, reg, weak, 2, "risk")

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)
	aggregate, results, classification := dispatcher.Dispatch(context.Background(), riskQuery, map[string]interface{}{"team": "sales"})

	if classification.Category != CategorySemanticSearch {
		t.Errorf("Expected semantic-search fallback, got %s", classification.Category)
	}
	if !aggregate.Success {
		t.Fatalf("Expected success, got: %s", aggregate.Error)
	}
	if aggregate.PrimarySource != "risk-watch" {
		t.Errorf("Expected risk-watch primary, got %s", aggregate.PrimarySource)
	}
	if len(results) != 2 {
		t.Fatalf("Expected a result per server, got %d", len(results))
	}

	if aggregate.Routing == nil {
		t.Fatal("Expected routing metadata")
	}
	if aggregate.Routing.Category != CategorySemanticSearch {
		t.Errorf("Expected category stamped, got %s", aggregate.Routing.Category)
	}
	if !aggregate.Routing.Parallel {
		t.Error("Expected federation marked parallel")
	}
	if len(aggregate.Routing.EnginesUsed) != 2 ||
		aggregate.Routing.EnginesUsed[0] != "risk-watch" || aggregate.Routing.EnginesUsed[1] != "crm" {
		t.Errorf("Expected dispatch targets in priority order, got %v", aggregate.Routing.EnginesUsed)
	}

	req := strong.request()
	if req == nil {
		t.Fatal("Expected server to receive a request")
	}
	if req.RequestID == "" {
		t.Error("Expected a request ID")
	}
	if req.Query != riskQuery {
		t.Errorf("Expected query forwarded, got %q", req.Query)
	}
	if req.Category != string(CategorySemanticSearch) {
		t.Errorf("Expected category forwarded, got %q", req.Category)
	}
	if req.Context["team"] != "sales" {
		t.Errorf("Expected context forwarded, got %v", req.Context)
	}

	weakReq := weak.request()
	if weakReq == nil || weakReq.RequestID != req.RequestID {
		t.Error("Expected one shared request ID across the batch")
	}
}

func TestDispatch_SharedBudgetTimesOutSlowServers(t *testing.T) {
	config := DefaultRoutingConfig()
	config.CategoryTimeoutsMs[CategorySemanticSearch] = 60

	reg := registry.NewServerRegistry()
	fast := &fakeServer{name: "fast", payload: map[string]interface{}{"answer": "ok"}, confidence: 0.8}
	slow := &fakeServer{name: "slow", payload: map[string]interface{}{"answer": "late"}, confidence: 0.9, delay: 500 * time.Millisecond}
	registerFake(t, reg, fast, 1, "risk")
	registerFake(t, reg, slow, 2, "risk")

	dispatcher := newTestDispatcher(config, reg)
	started := time.Now()
	aggregate, results, _ := dispatcher.Dispatch(context.Background(), riskQuery, nil)
	elapsed := time.Since(started)

	// The ~60ms budget must cut the batch off well before the slow
	// server's natural 500ms latency.
	if elapsed >= 400*time.Millisecond {
		t.Errorf("Expected dispatch bounded by the budget, took %v", elapsed)
	}
	if !aggregate.Success {
		t.Fatalf("Expected the fast answer to win, got: %s", aggregate.Error)
	}
	if aggregate.PrimarySource != "fast" {
		t.Errorf("Expected fast primary, got %s", aggregate.PrimarySource)
	}

	if len(results) != 2 {
		t.Fatalf("Expected a result per server, got %d", len(results))
	}
	byName := make(map[string]*FederatedResult, len(results))
	for _, result := range results {
		byName[result.ServerName] = result
	}
	if !byName["fast"].Success {
		t.Errorf("Expected fast success, got %+v", byName["fast"])
	}
	if byName["slow"].Success {
		t.Error("Expected slow server to miss the budget")
	}
	if byName["slow"].Error != "timeout" {
		t.Errorf("Expected plain timeout error, got %q", byName["slow"].Error)
	}
	if byName["slow"].ExecutionTimeMs >= 400 {
		t.Errorf("Expected the recorded time to reflect the cutoff, got %dms", byName["slow"].ExecutionTimeMs)
	}
}

func TestDispatch_FanOutRunsConcurrently(t *testing.T) {
	reg := registry.NewServerRegistry()
	for _, name := range []string{"risk-a", "risk-b", "risk-c"} {
		server := &fakeServer{
			name:       name,
			payload:    map[string]interface{}{"answer": name},
			confidence: 0.8,
			delay:      100 * time.Millisecond,
		}
		registerFake(t, reg, server, 1, "risk")
	}

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)
	started := time.Now()
	aggregate, results, _ := dispatcher.Dispatch(context.Background(), riskQuery, nil)
	elapsed := time.Since(started)

	if !aggregate.Success {
		t.Fatalf("Expected success, got: %s", aggregate.Error)
	}
	if len(results) != 3 {
		t.Fatalf("Expected all three servers answered, got %d", len(results))
	}
	for _, result := range results {
		if !result.Success {
			t.Errorf("Expected %s to succeed, got %+v", result.ServerName, result)
		}
	}

	// Three 100ms calls dispatched together should cost about one
	// delay, not the 300ms a sequential walk would take.
	if elapsed >= 250*time.Millisecond {
		t.Errorf("Expected concurrent fan-out near 100ms, took %v", elapsed)
	}
}

func TestDispatch_CallerCancellationMarksStragglersCancelled(t *testing.T) {
	reg := registry.NewServerRegistry()
	stuck := &fakeServer{
		name:         "stuck",
		payload:      map[string]interface{}{"answer": "never"},
		confidence:   0.9,
		delay:        500 * time.Millisecond,
		ignoreCancel: true,
	}
	registerFake(t, reg, stuck, 1, "risk")

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	aggregate, results, _ := dispatcher.Dispatch(ctx, riskQuery, nil)
	elapsed := time.Since(started)

	if elapsed >= 400*time.Millisecond {
		t.Errorf("Expected dispatch to return at cancellation, took %v", elapsed)
	}
	if aggregate.Success {
		t.Fatal("Expected failure when the only server was cancelled")
	}
	if len(results) != 1 {
		t.Fatalf("Expected one synthetic result, got %d", len(results))
	}
	if results[0].Error != "cancelled" {
		t.Errorf("Expected cancellation reported as such, got %q", results[0].Error)
	}
	// The recorded time is the wall clock at cutoff, not the multi
	// second category budget.
	if results[0].ExecutionTimeMs >= 400 {
		t.Errorf("Expected cutoff-scale execution time, got %dms", results[0].ExecutionTimeMs)
	}
}

func TestDispatch_NoHealthyServers(t *testing.T) {
	dispatcher := newTestDispatcher(DefaultRoutingConfig(), registry.NewServerRegistry())

	aggregate, results, classification := dispatcher.Dispatch(context.Background(), riskQuery, nil)

	if aggregate.Success {
		t.Fatal("Expected failure with no servers")
	}
	if !strings.Contains(aggregate.Error, "no healthy servers available") {
		t.Errorf("Expected no-healthy-servers error, got: %s", aggregate.Error)
	}
	if results != nil {
		t.Errorf("Expected no results, got %v", results)
	}
	if classification == nil || classification.Category != CategorySemanticSearch {
		t.Error("Expected classification returned even without servers")
	}
	if aggregate.Routing == nil || aggregate.Routing.Category != CategorySemanticSearch {
		t.Error("Expected routing metadata on the failure")
	}
	if aggregate.Routing != nil && aggregate.Routing.Parallel {
		t.Error("Expected no parallel flag when nothing was dispatched")
	}
}

func TestDispatch_UnhealthyServersFiltered(t *testing.T) {
	reg := registry.NewServerRegistry()
	healthy := &fakeServer{name: "fast", payload: map[string]interface{}{"answer": "ok"}, confidence: 0.8}
	sick := &probingFakeServer{
		fakeServer: fakeServer{name: "sick", payload: map[string]interface{}{"answer": "stale"}, confidence: 0.9},
		status:     &base.HealthStatus{Healthy: false, Error: "connection refused"},
	}
	registerFake(t, reg, healthy, 1, "risk")
	registerFake(t, reg, sick, 1, "risk")

	monitor := registry.NewHealthMonitor(reg, time.Minute)
	monitor.CheckNow(context.Background())

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)
	aggregate, results, _ := dispatcher.Dispatch(context.Background(), riskQuery, nil)

	if !aggregate.Success {
		t.Fatalf("Expected success from the healthy server, got: %s", aggregate.Error)
	}
	if len(results) != 1 || results[0].ServerName != "fast" {
		t.Errorf("Expected only the healthy server dispatched, got %v", results)
	}
	if sick.callCount() != 0 {
		t.Errorf("Expected unhealthy server skipped, got %d calls", sick.callCount())
	}
}

func TestDispatch_ServerFailuresNormalized(t *testing.T) {
	reg := registry.NewServerRegistry()
	broken := &fakeServer{name: "broken", err: fmt.Errorf("boom")}
	silent := &fakeServer{name: "silent", nilReply: true}
	registerFake(t, reg, broken, 1, "risk")
	registerFake(t, reg, silent, 2, "risk")

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)
	aggregate, results, _ := dispatcher.Dispatch(context.Background(), riskQuery, nil)

	if aggregate.Success {
		t.Fatal("Expected failure when every server fails")
	}
	if !strings.Contains(aggregate.Error, "all servers failed") {
		t.Errorf("Expected aggregate failure message, got: %s", aggregate.Error)
	}

	byName := make(map[string]*FederatedResult, len(results))
	for _, result := range results {
		byName[result.ServerName] = result
	}
	if byName["broken"].Error != "boom" {
		t.Errorf("Expected server error surfaced, got %q", byName["broken"].Error)
	}
	if byName["silent"].Error != "server returned no response" {
		t.Errorf("Expected nil-reply error, got %q", byName["silent"].Error)
	}
}

func TestDispatchStream_EventSequence(t *testing.T) {
	reg := registry.NewServerRegistry()
	registerFake(t, reg, &fakeServer{name: "risk-watch", payload: map[string]interface{}{"answer": "a"}, confidence: 0.9}, 1, "risk")
	registerFake(t, reg, &fakeServer{name: "crm", payload: map[string]interface{}{"answer": "b"}, confidence: 0.6}, 2, "risk")

	dispatcher := newTestDispatcher(DefaultRoutingConfig(), reg)

	var events []StreamEvent
	for event := range dispatcher.DispatchStream(context.Background(), riskQuery, nil) {
		events = append(events, event)
	}

	if len(events) != 6 {
		t.Fatalf("Expected 6 events (classification, 2 started, 2 results, complete), got %d", len(events))
	}

	if events[0].Type != StreamEventClassification {
		t.Errorf("Expected classification first, got %s", events[0].Type)
	}
	if events[0].Decision == nil || events[0].Decision.Category != CategorySemanticSearch {
		t.Errorf("Expected classification decision, got %+v", events[0].Decision)
	}

	started := map[string]bool{}
	for _, event := range events[1:3] {
		if event.Type != StreamEventServerStarted {
			t.Errorf("Expected server_started, got %s", event.Type)
		}
		started[event.Source] = true
	}
	if !started["risk-watch"] || !started["crm"] {
		t.Errorf("Expected both servers started, got %v", started)
	}

	resulted := map[string]bool{}
	for _, event := range events[3:5] {
		if event.Type != StreamEventServerResult {
			t.Errorf("Expected server_result, got %s", event.Type)
		}
		if event.Result == nil {
			t.Error("Expected result attached to server_result event")
			continue
		}
		resulted[event.Source] = true
	}
	if !resulted["risk-watch"] || !resulted["crm"] {
		t.Errorf("Expected results from both servers, got %v", resulted)
	}

	last := events[len(events)-1]
	if last.Type != StreamEventComplete {
		t.Errorf("Expected complete last, got %s", last.Type)
	}
	if last.Aggregate == nil || !last.Aggregate.Success {
		t.Errorf("Expected successful aggregate on complete, got %+v", last.Aggregate)
	}
}

func TestDispatchStream_NoServers(t *testing.T) {
	dispatcher := newTestDispatcher(DefaultRoutingConfig(), registry.NewServerRegistry())

	var events []StreamEvent
	for event := range dispatcher.DispatchStream(context.Background(), riskQuery, nil) {
		events = append(events, event)
	}

	if len(events) != 2 {
		t.Fatalf("Expected classification and complete only, got %d events", len(events))
	}
	if events[0].Type != StreamEventClassification {
		t.Errorf("Expected classification first, got %s", events[0].Type)
	}
	if events[1].Type != StreamEventComplete {
		t.Errorf("Expected complete second, got %s", events[1].Type)
	}
	if events[1].Aggregate == nil || events[1].Aggregate.Success {
		t.Error("Expected failed aggregate on complete")
	}
}
