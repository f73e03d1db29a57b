// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gcs

import (
	"context"
	"strings"
	"testing"

	"axonflow/insightmesh/adapters/base"
)

func TestNewGCSAdapter(t *testing.T) {
	a := NewGCSAdapter()
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
	if got := a.Type(); got != "gcs" {
		t.Errorf("Type() = %q, want %q", got, "gcs")
	}
}

func TestGCSAdapter_Connect_MissingBucket(t *testing.T) {
	a := NewGCSAdapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:    "research-store",
		Options: map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("expected error without bucket option")
	}
	if !strings.Contains(err.Error(), "missing required option: bucket") {
		t.Errorf("error = %v, want 'missing required option: bucket'", err)
	}
}

func TestGCSAdapter_Execute_NotConnected(t *testing.T) {
	a := NewGCSAdapter()

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error when executing with nil client")
	}
	if !strings.Contains(err.Error(), "GCS client not initialized") {
		t.Errorf("error = %v, want 'GCS client not initialized'", err)
	}
}

func TestGCSAdapter_HealthProbe_NotConnected(t *testing.T) {
	a := NewGCSAdapter()

	status, err := a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status with nil client")
	}
	if status.Error != "GCS client not initialized" {
		t.Errorf("status.Error = %q", status.Error)
	}
}

func TestGCSAdapter_Close_NotConnected(t *testing.T) {
	a := NewGCSAdapter()
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("Close with nil client should not error: %v", err)
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"normal words", "Research Summary Q3", []string{"research", "summary"}},
		{"short words dropped", "of an the summary", []string{"the", "summary"}},
		{"empty query", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryTerms(tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("queryTerms(%q) = %v, want %v", tt.query, got, tt.want)
			}
			for i, term := range got {
				if term != tt.want[i] {
					t.Errorf("term %d = %q, want %q", i, term, tt.want[i])
				}
			}
		})
	}
}

func TestMatchesTerms(t *testing.T) {
	tests := []struct {
		name   string
		object string
		terms  []string
		want   bool
	}{
		{"match", "research/summary-2026.md", []string{"summary"}, true},
		{"no match", "research/notes.md", []string{"summary"}, false},
		{"empty terms match all", "anything.txt", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesTerms(tt.object, tt.terms); got != tt.want {
				t.Errorf("matchesTerms(%q, %v) = %v, want %v", tt.object, tt.terms, got, tt.want)
			}
		})
	}
}
