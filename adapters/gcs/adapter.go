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

// Package gcs provides a Google Cloud Storage federation adapter. It
// answers queries by matching object names in a configured bucket
// against the query terms. A custom endpoint option supports the GCS
// emulator.
package gcs

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultMatchLimit caps how many matched objects one query returns
const defaultMatchLimit = 25

// minTermLength filters out short query words when matching names
const minTermLength = 3

// GCSAdapter serves federated queries from a Google Cloud Storage bucket
type GCSAdapter struct {
	*sdk.BaseAdapter
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSAdapter creates a new GCS adapter instance
func NewGCSAdapter() *GCSAdapter {
	a := &GCSAdapter{
		BaseAdapter: sdk.NewBaseAdapter("gcs"),
	}
	a.SetCapabilities([]string{"query", "objects", "streaming"})
	return a
}

// Connect builds the GCS client and verifies the bucket is reachable
func (a *GCSAdapter) Connect(ctx context.Context, cfg *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, cfg); err != nil {
		return err
	}

	if err := a.RequireOptions("bucket"); err != nil {
		return err
	}
	a.bucket = a.GetStringOption("bucket", "")
	a.prefix = a.GetStringOption("prefix", "")

	var opts []option.ClientOption
	if credFile := a.GetCredential("credentials_file"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON := a.GetCredential("credentials_json"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	if endpoint := a.GetStringOption("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to create GCS client", err)
	}

	if _, err := client.Bucket(a.bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return base.NewAdapterError(cfg.Name, "Connect", "failed to verify bucket", err)
	}

	a.client = client
	a.GetMetrics().RecordConnect()
	a.Log("Connected to GCS (bucket: %s)", a.bucket)

	return nil
}

// Close closes the GCS client
func (a *GCSAdapter) Close(ctx context.Context) error {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			return base.NewAdapterError(a.Name(), "Close", "failed to close client", err)
		}
		a.client = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute lists objects under the configured prefix and returns those
// whose names match the query terms
func (a *GCSAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.client == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "GCS client not initialized", nil)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	terms := queryTerms(req.Query)
	limit := a.GetIntOption("limit", defaultMatchLimit)

	timer := sdk.NewTimer()
	matches, scanned, err := a.matchObjects(queryCtx, terms, limit)
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "object listing failed", err)
	}

	confidence := a.GetFloatOption("confidence", 0.75)
	if len(matches) == 0 {
		confidence = 0.1
	}

	return &base.QueryResponse{
		Payload: map[string]interface{}{
			"objects": matches,
			"count":   len(matches),
			"bucket":  a.bucket,
		},
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"scanned": scanned,
			"prefix":  a.prefix,
		},
	}, nil
}

// HealthProbe verifies the bucket is reachable
func (a *GCSAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "GCS client not initialized",
		}, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := a.client.Bucket(a.bucket).Attrs(probeCtx)
	latency := time.Since(start)
	a.GetMetrics().RecordProbe(err)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"bucket": a.bucket, "prefix": a.prefix},
		Timestamp: time.Now(),
	}, nil
}

// matchObjects iterates the listing and collects objects whose names
// match any query term. An empty term list matches everything.
func (a *GCSAdapter) matchObjects(ctx context.Context, terms []string, limit int) ([]map[string]interface{}, int, error) {
	query := &storage.Query{}
	if a.prefix != "" {
		query.Prefix = a.prefix
	}

	it := a.client.Bucket(a.bucket).Objects(ctx, query)

	matches := make([]map[string]interface{}, 0)
	scanned := 0
	for len(matches) < limit {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, scanned, err
		}

		scanned++
		if !matchesTerms(attrs.Name, terms) {
			continue
		}

		matches = append(matches, map[string]interface{}{
			"name":          attrs.Name,
			"size_bytes":    attrs.Size,
			"last_modified": attrs.Updated.UTC().Format(time.RFC3339),
		})
	}

	return matches, scanned, nil
}

// queryTerms extracts the words worth matching from the query text
func queryTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) >= minTermLength {
			terms = append(terms, word)
		}
	}
	return terms
}

// matchesTerms reports whether the name contains any of the terms
func matchesTerms(name string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
