// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	// Set test environment variables
	os.Setenv("TEST_VAR", "test_value")
	os.Setenv("OTHER_VAR", "other_value")
	defer os.Unsetenv("TEST_VAR")
	defer os.Unsetenv("OTHER_VAR")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "dollar brace syntax",
			input:    "prefix ${TEST_VAR} suffix",
			expected: "prefix test_value suffix",
		},
		{
			name:     "dollar syntax",
			input:    "prefix $TEST_VAR suffix",
			expected: "prefix test_value suffix",
		},
		{
			name:     "default value - var exists",
			input:    "${TEST_VAR:-default}",
			expected: "test_value",
		},
		{
			name:     "default value - var not exists",
			input:    "${UNDEFINED_VAR:-default_val}",
			expected: "default_val",
		},
		{
			name:     "undefined var - empty result",
			input:    "${UNDEFINED_VAR}",
			expected: "",
		},
		{
			name:     "multiple vars",
			input:    "${TEST_VAR} and ${OTHER_VAR}",
			expected: "test_value and other_value",
		},
		{
			name:     "no vars",
			input:    "plain text without variables",
			expected: "plain text without variables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidateServersFile(t *testing.T) {
	tests := []struct {
		name    string
		file    *ServersFile
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid file",
			file: &ServersFile{
				Version: "1.0",
				Servers: map[string]ServerFileEntry{
					"warehouse": {Type: "postgres", Enabled: true},
				},
			},
			wantErr: false,
		},
		{
			name:    "missing version",
			file:    &ServersFile{},
			wantErr: true,
			errMsg:  "must specify a version",
		},
		{
			name: "server missing type",
			file: &ServersFile{
				Version: "1.0",
				Servers: map[string]ServerFileEntry{
					"invalid": {Enabled: true},
				},
			},
			wantErr: true,
			errMsg:  "must specify a type",
		},
		{
			name: "server invalid type",
			file: &ServersFile{
				Version: "1.0",
				Servers: map[string]ServerFileEntry{
					"bad": {Type: "unknown_type", Enabled: true},
				},
			},
			wantErr: true,
			errMsg:  "invalid type",
		},
		{
			name: "negative timeout budget",
			file: &ServersFile{
				Version: "1.0",
				Servers: map[string]ServerFileEntry{
					"bad": {Type: "redis", Enabled: true, TimeoutBudgetMs: -100},
				},
			},
			wantErr: true,
			errMsg:  "timeout_budget_ms must be non-negative",
		},
		{
			name: "all valid server types",
			file: &ServersFile{
				Version: "1.0",
				Servers: map[string]ServerFileEntry{
					"pg":    {Type: "postgres", Enabled: true},
					"my":    {Type: "mysql", Enabled: true},
					"rd":    {Type: "redis", Enabled: true},
					"mg":    {Type: "mongodb", Enabled: true},
					"cs":    {Type: "cassandra", Enabled: true},
					"s3":    {Type: "s3", Enabled: true},
					"az":    {Type: "azureblob", Enabled: true},
					"gcs":   {Type: "gcs", Enabled: true},
					"httpa": {Type: "http_api", Enabled: true},
				},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServersFile(tt.file)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestGenerateExampleServersFile(t *testing.T) {
	example := GenerateExampleServersFile()

	// Verify it contains key sections
	expectedSections := []string{
		"version:",
		"servers:",
		"warehouse:",
		"answer-cache:",
		"capability_tags:",
		"timeout_budget_ms:",
		"${WAREHOUSE_DATABASE_URL}",
		"${REDIS_URL:-redis://localhost:6379}",
		"aws-secrets://",
	}

	for _, section := range expectedSections {
		if !strings.Contains(example, section) {
			t.Errorf("example config should contain %q", section)
		}
	}
}

func TestNewYAMLServerFileLoader_FileNotFound(t *testing.T) {
	_, err := NewYAMLServerFileLoader("/nonexistent/path/servers.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestNewYAMLServerFileLoader_InvalidYAML(t *testing.T) {
	// Create temp file with invalid YAML
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	err := os.WriteFile(tmpFile, []byte("invalid: yaml: content: ["), 0644)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewYAMLServerFileLoader(tmpFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestYAMLServerFileLoader_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "servers.yaml")
	content := `
version: "1.0"
servers:
  warehouse:
    type: postgres
    enabled: true
`
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}

	loader, err := NewYAMLServerFileLoader(tmpFile)
	if err != nil {
		t.Fatal(err)
	}

	// Modify the file
	newContent := `
version: "2.0"
servers:
  warehouse:
    type: postgres
    enabled: false
`
	err = os.WriteFile(tmpFile, []byte(newContent), 0644)
	if err != nil {
		t.Fatal(err)
	}

	// Reload
	err = loader.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if loader.file.Version != "2.0" {
		t.Errorf("version after reload = %q, want %q", loader.file.Version, "2.0")
	}
}

func TestYAMLServerFileLoader_LoadServers(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "servers.yaml")
	content := `
version: "1.0"
servers:
  warehouse:
    type: postgres
    enabled: true
    display_name: "Analytics Warehouse"
    capability_tags: [finance, analytics]
    priority: 1
    timeout_budget_ms: 5000
    connection_url: postgres://localhost/analytics
    credentials:
      username: user
      password: pass
    options:
      max_open_conns: 10
    timeout_ms: 10000
    max_retries: 5
  disabled-store:
    type: s3
    enabled: false
  semantic-index:
    type: http_api
    enabled: true
    capability_tags: [knowledge]
    priority: 2
`
	os.WriteFile(tmpFile, []byte(content), 0644)

	loader, err := NewYAMLServerFileLoader(tmpFile)
	if err != nil {
		t.Fatal(err)
	}

	specs, err := loader.LoadServers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("disabled entries skipped", func(t *testing.T) {
		if len(specs) != 2 {
			t.Fatalf("expected 2 specs, got %d", len(specs))
		}
		for _, spec := range specs {
			if spec.Config.Name == "disabled-store" {
				t.Error("disabled-store should not be loaded")
			}
		}
	})

	t.Run("specs sorted by name", func(t *testing.T) {
		if specs[0].Config.Name != "semantic-index" || specs[1].Config.Name != "warehouse" {
			t.Errorf("specs out of order: %s, %s", specs[0].Config.Name, specs[1].Config.Name)
		}
	})

	t.Run("descriptor values", func(t *testing.T) {
		for _, spec := range specs {
			if spec.Config.Name != "warehouse" {
				continue
			}
			desc := spec.Descriptor
			if desc.Name != "warehouse" {
				t.Errorf("Name = %q, want warehouse", desc.Name)
			}
			if desc.Priority != 1 {
				t.Errorf("Priority = %d, want 1", desc.Priority)
			}
			if desc.TimeoutBudgetMs != 5000 {
				t.Errorf("TimeoutBudgetMs = %d, want 5000", desc.TimeoutBudgetMs)
			}
			if len(desc.CapabilityTags) != 2 || desc.CapabilityTags[0] != "finance" {
				t.Errorf("CapabilityTags = %v, want [finance analytics]", desc.CapabilityTags)
			}
		}
	})

	t.Run("config values", func(t *testing.T) {
		for _, spec := range specs {
			if spec.Config.Name != "warehouse" {
				continue
			}
			cfg := spec.Config
			if cfg.Type != "postgres" {
				t.Errorf("Type = %q, want postgres", cfg.Type)
			}
			if cfg.ConnectionURL != "postgres://localhost/analytics" {
				t.Errorf("ConnectionURL = %q", cfg.ConnectionURL)
			}
			if cfg.MaxRetries != 5 {
				t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
			}
			if cfg.Timeout.Milliseconds() != 10000 {
				t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
			}
			if cfg.Credentials["username"] != "user" {
				t.Errorf("username = %q, want user", cfg.Credentials["username"])
			}
			if cfg.Options["max_open_conns"] != 10 {
				t.Errorf("max_open_conns = %v, want 10", cfg.Options["max_open_conns"])
			}
		}
	})

	t.Run("default timeout applied", func(t *testing.T) {
		for _, spec := range specs {
			if spec.Config.Name != "semantic-index" {
				continue
			}
			if spec.Config.Timeout.Seconds() != 30 {
				t.Errorf("default Timeout = %v, want 30s", spec.Config.Timeout)
			}
			if spec.Config.Credentials == nil {
				t.Error("Credentials should be initialized")
			}
			if spec.Config.Options == nil {
				t.Error("Options should be initialized")
			}
		}
	})

	t.Run("nil file error", func(t *testing.T) {
		loader2 := &YAMLServerFileLoader{}
		_, err := loader2.LoadServers()
		if err == nil {
			t.Error("expected error for unloaded file")
		}
	})
}

func TestYAMLServerFileLoader_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_DB_URL", "postgres://testhost:5432/testdb")
	os.Setenv("TEST_USER", "testuser")
	defer os.Unsetenv("TEST_DB_URL")
	defer os.Unsetenv("TEST_USER")

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "servers.yaml")
	content := `
version: "1.0"
servers:
  warehouse:
    type: postgres
    enabled: true
    connection_url: ${TEST_DB_URL}
    credentials:
      username: ${TEST_USER}
      password: ${UNDEFINED_PASSWORD:-default_pass}
`
	os.WriteFile(tmpFile, []byte(content), 0644)

	loader, err := NewYAMLServerFileLoader(tmpFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	specs, _ := loader.LoadServers()
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}

	cfg := specs[0].Config
	if cfg.ConnectionURL != "postgres://testhost:5432/testdb" {
		t.Errorf("ConnectionURL = %q, want env var value", cfg.ConnectionURL)
	}
	if cfg.Credentials["username"] != "testuser" {
		t.Errorf("username = %q, want 'testuser'", cfg.Credentials["username"])
	}
	if cfg.Credentials["password"] != "default_pass" {
		t.Errorf("password = %q, want 'default_pass' (default)", cfg.Credentials["password"])
	}
}
