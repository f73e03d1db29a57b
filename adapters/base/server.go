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

package base

import (
	"context"
	"time"
)

// FederatedServer defines the interface that every federation server adapter
// must implement. A server is a capability-tagged knowledge source (warehouse,
// document store, cache, REST service) that answers a query with an opaque
// payload and a self-reported confidence.
type FederatedServer interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *ServerConfig) error
	Close(ctx context.Context) error

	// Query Dispatch
	Execute(ctx context.Context, req *QueryRequest) (*QueryResponse, error)

	// Metadata
	Name() string           // Unique server instance name
	Type() string           // Adapter type (postgres, redis, http_api, ...)
	Version() string        // Adapter version
	Capabilities() []string // Capability tags (risk, deal, warehouse, ...)
}

// HealthProber is the optional health-probe capability. Adapters that can
// cheaply verify their backing service implement it; the health monitor
// assumes servers without it are healthy.
type HealthProber interface {
	HealthProbe(ctx context.Context) (*HealthStatus, error)
}

// HealthState is the advisory health of a registered server. It is consulted
// before dispatch but may be stale between monitor passes.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// ServerConfig holds the configuration for a server adapter instance
type ServerConfig struct {
	Name          string                 `json:"name"`           // Unique name for this server
	Type          string                 `json:"type"`           // Type: postgres, redis, http_api
	ConnectionURL string                 `json:"connection_url"` // Connection string (DSN)
	Credentials   map[string]string      `json:"credentials"`    // Username, password, API keys
	Options       map[string]interface{} `json:"options"`        // Adapter-specific options
	Timeout       time.Duration          `json:"timeout"`        // Operation timeout (default: 5s)
	MaxRetries    int                    `json:"max_retries"`    // Retry count for transient failures
}

// ServerDescriptor is the registry's record of a federation server. Health
// fields are written only by the health monitor, never by query execution.
type ServerDescriptor struct {
	Name              string      `json:"name"`
	CapabilityTags    []string    `json:"capability_tags"`
	Priority          int         `json:"priority"`           // Lower = more important
	TimeoutBudgetMs   int64       `json:"timeout_budget_ms"`  // Per-call probe/dispatch budget
	Health            HealthState `json:"health"`
	LastHealthCheckAt time.Time   `json:"last_health_check_at"`
}

// QueryRequest carries one federated query to a server adapter
type QueryRequest struct {
	RequestID string                 `json:"request_id"`
	Query     string                 `json:"query"`              // Natural-language query text
	Category  string                 `json:"category,omitempty"` // Classifier output, advisory
	Context   map[string]interface{} `json:"context,omitempty"`
	Timeout   time.Duration          `json:"timeout,omitempty"` // Override default timeout
}

// QueryResponse is a server adapter's answer. Payload shape is adapter-owned;
// the aggregator only inspects it for its quality heuristic.
type QueryResponse struct {
	Payload    interface{}            `json:"payload"`
	Confidence float64                `json:"confidence"` // Self-reported, clamped by the caller
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus represents the outcome of one health probe
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// AdapterError represents errors specific to server adapter operations
type AdapterError struct {
	ServerName string
	Operation  string
	Message    string
	Cause      error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return e.ServerName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ServerName + "." + e.Operation + ": " + e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(serverName, operation, message string, cause error) *AdapterError {
	return &AdapterError{
		ServerName: serverName,
		Operation:  operation,
		Message:    message,
		Cause:      cause,
	}
}
