// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package factory

import (
	"context"
	"strings"
	"testing"

	"axonflow/insightmesh/adapters/base"
)

// stubServer implements base.FederatedServer for registry tests
type stubServer struct {
	serverType string
}

func (s *stubServer) Connect(ctx context.Context, cfg *base.ServerConfig) error { return nil }
func (s *stubServer) Close(ctx context.Context) error                           { return nil }
func (s *stubServer) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	return &base.QueryResponse{}, nil
}
func (s *stubServer) Name() string           { return "stub" }
func (s *stubServer) Type() string           { return s.serverType }
func (s *stubServer) Version() string        { return "1.0.0" }
func (s *stubServer) Capabilities() []string { return []string{"query"} }

func TestIsValidServerType(t *testing.T) {
	tests := []struct {
		name       string
		serverType string
		want       bool
	}{
		{"valid postgres", ServerPostgres, true},
		{"valid mysql", ServerMySQL, true},
		{"valid redis", ServerRedis, true},
		{"valid mongodb", ServerMongoDB, true},
		{"valid cassandra", ServerCassandra, true},
		{"valid s3", ServerS3, true},
		{"valid azureblob", ServerAzureBlob, true},
		{"valid gcs", ServerGCS, true},
		{"valid http_api", ServerHTTPAPI, true},
		{"invalid type", "unknown", false},
		{"empty type", "", false},
		{"case sensitive", "POSTGRES", false},
		{"typo", "postgress", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidServerType(tt.serverType); got != tt.want {
				t.Errorf("IsValidServerType(%q) = %v, want %v", tt.serverType, got, tt.want)
			}
		})
	}
}

func TestServerTypeConstants(t *testing.T) {
	if ServerPostgres != "postgres" {
		t.Errorf("ServerPostgres = %q, want %q", ServerPostgres, "postgres")
	}
	if ServerHTTPAPI != "http_api" {
		t.Errorf("ServerHTTPAPI = %q, want %q", ServerHTTPAPI, "http_api")
	}
	if ServerAzureBlob != "azureblob" {
		t.Errorf("ServerAzureBlob = %q, want %q", ServerAzureBlob, "azureblob")
	}

	expectedCount := 9
	if len(ValidServerTypes) != expectedCount {
		t.Errorf("ValidServerTypes has %d entries, want %d", len(ValidServerTypes), expectedCount)
	}
}

func TestAdapterRegistry_Register(t *testing.T) {
	registry := NewAdapterRegistry()

	creator := func() base.FederatedServer {
		return &stubServer{serverType: ServerPostgres}
	}

	if err := registry.Register(ServerPostgres, creator); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !registry.IsRegistered(ServerPostgres) {
		t.Error("IsRegistered() = false after Register")
	}

	// Duplicate registration fails
	err := registry.Register(ServerPostgres, creator)
	if err == nil {
		t.Fatal("Register() expected error for duplicate type")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Register() error = %v, want 'already registered'", err)
	}

	// Unknown type fails
	err = registry.Register("bogus", creator)
	if err == nil {
		t.Fatal("Register() expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "unknown server type") {
		t.Errorf("Register() error = %v, want 'unknown server type'", err)
	}
}

func TestAdapterRegistry_RegisterOrReplace(t *testing.T) {
	registry := NewAdapterRegistry()

	registry.RegisterOrReplace(ServerRedis, func() base.FederatedServer {
		return &stubServer{serverType: "first"}
	})
	registry.RegisterOrReplace(ServerRedis, func() base.FederatedServer {
		return &stubServer{serverType: "second"}
	})

	server, err := registry.Create(ServerRedis)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if server.Type() != "second" {
		t.Errorf("Create() returned type %q, want %q", server.Type(), "second")
	}
}

func TestAdapterRegistry_Create(t *testing.T) {
	registry := NewAdapterRegistry()

	_, err := registry.Create(ServerMongoDB)
	if err == nil {
		t.Fatal("Create() expected error for unregistered type")
	}
	if !strings.Contains(err.Error(), "no adapter registered") {
		t.Errorf("Create() error = %v, want 'no adapter registered'", err)
	}

	registry.RegisterOrReplace(ServerMongoDB, func() base.FederatedServer {
		return &stubServer{serverType: ServerMongoDB}
	})

	server, err := registry.Create(ServerMongoDB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if server == nil {
		t.Fatal("Create() returned nil server")
	}

	// Each call creates a fresh instance
	other, err := registry.Create(ServerMongoDB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if server == other {
		t.Error("Create() returned the same instance twice")
	}
}

func TestAdapterRegistry_Clear(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.RegisterBuiltinAdapters()

	if registry.Count() != len(ValidServerTypes) {
		t.Errorf("Count() = %d, want %d", registry.Count(), len(ValidServerTypes))
	}

	registry.Clear()
	if registry.Count() != 0 {
		t.Errorf("Count() = %d after Clear, want 0", registry.Count())
	}
}

func TestRegisterBuiltinAdapters(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.RegisterBuiltinAdapters()

	for _, serverType := range ValidServerTypes {
		t.Run(serverType, func(t *testing.T) {
			server, err := registry.Create(serverType)
			if err != nil {
				t.Fatalf("Create(%q) error = %v", serverType, err)
			}
			if server.Type() != serverType {
				t.Errorf("server.Type() = %q, want %q", server.Type(), serverType)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *base.ServerConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
			errMsg:  "config is required",
		},
		{
			name:    "missing type",
			config:  &base.ServerConfig{Name: "warehouse"},
			wantErr: true,
			errMsg:  "has no type",
		},
		{
			name:    "unknown type",
			config:  &base.ServerConfig{Name: "warehouse", Type: "oracle"},
			wantErr: true,
			errMsg:  "no adapter registered",
		},
		{
			name:   "postgres",
			config: &base.ServerConfig{Name: "warehouse", Type: ServerPostgres},
		},
		{
			name:   "http_api",
			config: &base.ServerConfig{Name: "helpdesk", Type: ServerHTTPAPI},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("New() error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if server.Type() != tt.config.Type {
				t.Errorf("server.Type() = %q, want %q", server.Type(), tt.config.Type)
			}
		})
	}
}
