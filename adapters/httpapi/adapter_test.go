// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"axonflow/insightmesh/adapters/base"
)

func connectedAdapter(t *testing.T, serverURL string, options map[string]interface{}, credentials map[string]string) *HTTPAPIAdapter {
	t.Helper()
	a := NewHTTPAPIAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:          "helpdesk",
		Type:          "http_api",
		ConnectionURL: serverURL,
		Timeout:       5 * time.Second,
		Options:       options,
		Credentials:   credentials,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewHTTPAPIAdapter(t *testing.T) {
	a := NewHTTPAPIAdapter()
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
	if got := a.Type(); got != "http_api" {
		t.Errorf("Type() = %q, want %q", got, "http_api")
	}
	if a.maxResponseSize != DefaultMaxResponseSize {
		t.Errorf("maxResponseSize = %d, want %d", a.maxResponseSize, DefaultMaxResponseSize)
	}
}

func TestHTTPAPIAdapter_Connect_MissingURL(t *testing.T) {
	a := NewHTTPAPIAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{Name: "helpdesk"})
	if err == nil {
		t.Fatal("expected error for missing connection_url")
	}
	if !strings.Contains(err.Error(), "connection_url is required") {
		t.Errorf("error = %v, want 'connection_url is required'", err)
	}
}

func TestHTTPAPIAdapter_Connect_InvalidScheme(t *testing.T) {
	a := NewHTTPAPIAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:          "helpdesk",
		ConnectionURL: "ftp://example.com",
	})
	if err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	if !strings.Contains(err.Error(), "must use http or https") {
		t.Errorf("error = %v, want 'must use http or https'", err)
	}
}

func TestHTTPAPIAdapter_Connect_Success(t *testing.T) {
	a := NewHTTPAPIAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:          "helpdesk",
		ConnectionURL: "http://example.com/api/",
		Options: map[string]interface{}{
			"auth_type": "bearer",
			"headers": map[string]interface{}{
				"X-Tenant": "insight",
			},
		},
		Credentials: map[string]string{
			"token": "secret-token",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.baseURL != "http://example.com/api" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", a.baseURL)
	}
	if a.authType != "bearer" {
		t.Errorf("authType = %q, want %q", a.authType, "bearer")
	}
	if a.headers["X-Tenant"] != "insight" {
		t.Errorf("header X-Tenant = %q, want %q", a.headers["X-Tenant"], "insight")
	}
	if a.httpClient == nil {
		t.Error("expected httpClient to be initialized")
	}
}

func TestHTTPAPIAdapter_Execute_NotConnected(t *testing.T) {
	a := NewHTTPAPIAdapter()

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error when executing before Connect")
	}
	if !strings.Contains(err.Error(), "HTTP client not initialized") {
		t.Errorf("error = %v, want 'HTTP client not initialized'", err)
	}
}

func TestHTTPAPIAdapter_Execute_Envelope(t *testing.T) {
	var gotBody map[string]interface{}
	var gotPath, gotAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"payload":    map[string]interface{}{"tickets": []string{"T-101", "T-204"}},
			"confidence": 0.88,
			"metadata":   map[string]interface{}{"source": "helpdesk-v2"},
		})
	}))
	defer ts.Close()

	a := connectedAdapter(t, ts.URL, map[string]interface{}{
		"auth_type": "bearer",
	}, map[string]string{
		"token": "secret-token",
	})

	resp, err := a.Execute(context.Background(), &base.QueryRequest{
		RequestID: "req-42",
		Query:     "open tickets about login",
		Category:  "structured-query",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/query" {
		t.Errorf("path = %q, want /query", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody["query"] != "open tickets about login" {
		t.Errorf("query in body = %v", gotBody["query"])
	}
	if gotBody["request_id"] != "req-42" {
		t.Errorf("request_id in body = %v", gotBody["request_id"])
	}

	if resp.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", resp.Confidence)
	}
	payload, ok := resp.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload type = %T, want map", resp.Payload)
	}
	if payload["tickets"] == nil {
		t.Error("expected tickets in payload")
	}
	if resp.Metadata["source"] != "helpdesk-v2" {
		t.Errorf("metadata source = %v", resp.Metadata["source"])
	}
}

func TestHTTPAPIAdapter_Execute_RawJSONFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []string{"a", "b"},
		})
	}))
	defer ts.Close()

	a := connectedAdapter(t, ts.URL, nil, nil)

	resp, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, ok := resp.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload type = %T, want map", resp.Payload)
	}
	if payload["results"] == nil {
		t.Error("expected raw body as payload")
	}
	if resp.Confidence != 0.7 {
		t.Errorf("confidence = %v, want default 0.7", resp.Confidence)
	}
}

func TestHTTPAPIAdapter_Execute_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "search index rebuilding",
		})
	}))
	defer ts.Close()

	a := connectedAdapter(t, ts.URL, nil, nil)

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "search index rebuilding") {
		t.Errorf("error = %v, want service error message", err)
	}
}

func TestHTTPAPIAdapter_Execute_ErrorStatusNoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	a := connectedAdapter(t, ts.URL, nil, nil)

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "service returned status 503") {
		t.Errorf("error = %v, want status message", err)
	}
}

func TestHTTPAPIAdapter_Execute_CustomQueryPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"payload": "ok", "confidence": 0.5})
	}))
	defer ts.Close()

	a := connectedAdapter(t, ts.URL, map[string]interface{}{
		"query_path": "/v2/ask",
	}, nil)

	if _, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v2/ask" {
		t.Errorf("path = %q, want /v2/ask", gotPath)
	}
}

func TestHTTPAPIAdapter_ApplyAuth(t *testing.T) {
	tests := []struct {
		name        string
		authType    string
		credentials map[string]string
		checkFn     func(r *http.Request) bool
	}{
		{
			name:        "bearer token",
			authType:    "bearer",
			credentials: map[string]string{"token": "my-token"},
			checkFn: func(r *http.Request) bool {
				return r.Header.Get("Authorization") == "Bearer my-token"
			},
		},
		{
			name:        "basic auth",
			authType:    "basic",
			credentials: map[string]string{"username": "user", "password": "pass"},
			checkFn: func(r *http.Request) bool {
				user, pass, ok := r.BasicAuth()
				return ok && user == "user" && pass == "pass"
			},
		},
		{
			name:        "api-key default header",
			authType:    "api-key",
			credentials: map[string]string{"api_key": "secret-key"},
			checkFn: func(r *http.Request) bool {
				return r.Header.Get("X-API-Key") == "secret-key"
			},
		},
		{
			name:        "api-key custom header",
			authType:    "api-key",
			credentials: map[string]string{"api_key": "secret-key", "header_name": "X-Auth-Token"},
			checkFn: func(r *http.Request) bool {
				return r.Header.Get("X-Auth-Token") == "secret-key"
			},
		},
		{
			name:        "no auth",
			authType:    "none",
			credentials: map[string]string{},
			checkFn: func(r *http.Request) bool {
				return r.Header.Get("Authorization") == ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := connectedAdapter(t, "http://example.com", map[string]interface{}{
				"auth_type": tt.authType,
			}, tt.credentials)

			req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
			a.applyAuth(req)

			if !tt.checkFn(req) {
				t.Errorf("auth check failed for %s", tt.name)
			}
		})
	}
}

func TestHTTPAPIAdapter_HealthProbe(t *testing.T) {
	a := NewHTTPAPIAdapter()

	status, err := a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status before Connect")
	}

	healthy := true
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a = connectedAdapter(t, ts.URL, nil, nil)

	status, err = a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Healthy {
		t.Errorf("expected healthy status, got error: %s", status.Error)
	}

	healthy = false
	status, err = a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status for 503")
	}
	if !strings.Contains(status.Error, "health endpoint returned status 503") {
		t.Errorf("status.Error = %q", status.Error)
	}
}

func TestHTTPAPIAdapter_Close(t *testing.T) {
	a := NewHTTPAPIAdapter()
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("Close before Connect should not error: %v", err)
	}

	a = NewHTTPAPIAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:          "helpdesk",
		ConnectionURL: "http://example.com",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if a.httpClient != nil {
		t.Error("expected httpClient to be cleared after Close")
	}
}
