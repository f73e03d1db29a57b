// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package s3

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"axonflow/insightmesh/adapters/base"
)

// stubS3Client implements s3API with canned listings
type stubS3Client struct {
	objects   []types.Object
	listErr   error
	headErr   error
	listCalls int
}

func (s *stubS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &s3.ListObjectsV2Output{
		Contents:    s.objects,
		IsTruncated: aws.Bool(false),
	}, nil
}

func (s *stubS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if s.headErr != nil {
		return nil, s.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func testObject(key string, size int64, modified time.Time) types.Object {
	return types.Object{
		Key:          aws.String(key),
		Size:         aws.Int64(size),
		LastModified: aws.Time(modified),
	}
}

func seededAdapter(t *testing.T, stub *stubS3Client, options map[string]interface{}) *S3Adapter {
	t.Helper()
	if options == nil {
		options = map[string]interface{}{}
	}
	if _, ok := options["bucket"]; !ok {
		options["bucket"] = "insight-reports"
	}

	a := NewS3Adapter()
	err := a.BaseAdapter.Connect(context.Background(), &base.ServerConfig{
		Name:    "report-archive",
		Type:    "s3",
		Timeout: 5 * time.Second,
		Options: options,
	})
	if err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}
	a.bucket = a.GetStringOption("bucket", "")
	a.prefix = a.GetStringOption("prefix", "")
	a.client = stub
	return a
}

func TestNewS3Adapter(t *testing.T) {
	a := NewS3Adapter()
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
	if got := a.Type(); got != "s3" {
		t.Errorf("Type() = %q, want %q", got, "s3")
	}
}

func TestS3Adapter_Connect_MissingBucket(t *testing.T) {
	a := NewS3Adapter()
	err := a.Connect(context.Background(), &base.ServerConfig{
		Name:    "report-archive",
		Options: map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("expected error without bucket option")
	}
	if !strings.Contains(err.Error(), "missing required option: bucket") {
		t.Errorf("error = %v, want 'missing required option: bucket'", err)
	}
}

func TestS3Adapter_Execute_NotConnected(t *testing.T) {
	a := NewS3Adapter()

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error when executing with nil client")
	}
	if !strings.Contains(err.Error(), "S3 client not initialized") {
		t.Errorf("error = %v, want 'S3 client not initialized'", err)
	}
}

func TestS3Adapter_Execute_MatchesKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubS3Client{
		objects: []types.Object{
			testObject("reports/acme-renewal-2026.pdf", 2048, now),
			testObject("reports/globex-quarterly.pdf", 1024, now),
			testObject("reports/acme-pricing.xlsx", 512, now),
		},
	}
	a := seededAdapter(t, stub, nil)

	resp, err := a.Execute(context.Background(), &base.QueryRequest{Query: "acme renewal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := resp.Payload.(map[string]interface{})
	if payload["count"] != 2 {
		t.Errorf("count = %v, want 2", payload["count"])
	}
	if payload["bucket"] != "insight-reports" {
		t.Errorf("bucket = %v, want insight-reports", payload["bucket"])
	}
	if resp.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", resp.Confidence)
	}
	if resp.Metadata["scanned"] != 3 {
		t.Errorf("scanned = %v, want 3", resp.Metadata["scanned"])
	}

	objects := payload["objects"].([]map[string]interface{})
	if objects[0]["key"] != "reports/acme-renewal-2026.pdf" {
		t.Errorf("first match = %v", objects[0]["key"])
	}
	if objects[0]["size_bytes"] != int64(2048) {
		t.Errorf("size_bytes = %v, want 2048", objects[0]["size_bytes"])
	}
	if objects[0]["last_modified"] != "2026-03-01T12:00:00Z" {
		t.Errorf("last_modified = %v", objects[0]["last_modified"])
	}
}

func TestS3Adapter_Execute_NoMatches(t *testing.T) {
	stub := &stubS3Client{
		objects: []types.Object{
			testObject("reports/globex-quarterly.pdf", 1024, time.Now()),
		},
	}
	a := seededAdapter(t, stub, nil)

	resp, err := a.Execute(context.Background(), &base.QueryRequest{Query: "initech invoices"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := resp.Payload.(map[string]interface{})
	if payload["count"] != 0 {
		t.Errorf("count = %v, want 0", payload["count"])
	}
	if resp.Confidence != 0.1 {
		t.Errorf("confidence = %v, want 0.1 for no matches", resp.Confidence)
	}
}

func TestS3Adapter_Execute_LimitApplied(t *testing.T) {
	now := time.Now()
	stub := &stubS3Client{
		objects: []types.Object{
			testObject("acme-1.pdf", 1, now),
			testObject("acme-2.pdf", 2, now),
			testObject("acme-3.pdf", 3, now),
		},
	}
	a := seededAdapter(t, stub, map[string]interface{}{"limit": 2})

	resp, err := a.Execute(context.Background(), &base.QueryRequest{Query: "acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := resp.Payload.(map[string]interface{})
	if payload["count"] != 2 {
		t.Errorf("count = %v, want 2 (limited)", payload["count"])
	}
}

func TestS3Adapter_Execute_ListError(t *testing.T) {
	stub := &stubS3Client{listErr: errors.New("access denied")}
	a := seededAdapter(t, stub, nil)

	_, err := a.Execute(context.Background(), &base.QueryRequest{Query: "acme"})
	if err == nil {
		t.Fatal("expected error from listing failure")
	}
	if !strings.Contains(err.Error(), "object listing failed") {
		t.Errorf("error = %v, want 'object listing failed'", err)
	}
}

func TestS3Adapter_HealthProbe(t *testing.T) {
	a := NewS3Adapter()

	status, err := a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status with nil client")
	}

	stub := &stubS3Client{}
	a = seededAdapter(t, stub, nil)

	status, err = a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Healthy {
		t.Errorf("expected healthy status, got error: %s", status.Error)
	}
	if status.Details["bucket"] != "insight-reports" {
		t.Errorf("bucket detail = %q", status.Details["bucket"])
	}

	stub.headErr = errors.New("bucket gone")
	status, err = a.HealthProbe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status after head failure")
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"normal words", "Acme Renewal Terms", []string{"acme", "renewal", "terms"}},
		{"short words dropped", "is an acme of it", []string{"acme"}},
		{"empty query", "", nil},
		{"only short words", "is a to of", nil},
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
		name  string
		key   string
		terms []string
		want  bool
	}{
		{"match one term", "reports/acme-renewal.pdf", []string{"acme"}, true},
		{"case insensitive", "reports/ACME-renewal.pdf", []string{"acme"}, true},
		{"no match", "reports/globex.pdf", []string{"acme"}, false},
		{"empty terms match all", "anything.txt", nil, true},
		{"any term suffices", "globex-invoice.pdf", []string{"acme", "invoice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesTerms(tt.key, tt.terms); got != tt.want {
				t.Errorf("matchesTerms(%q, %v) = %v, want %v", tt.key, tt.terms, got, tt.want)
			}
		})
	}
}
