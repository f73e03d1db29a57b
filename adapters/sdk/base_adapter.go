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

package sdk

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"axonflow/insightmesh/adapters/base"
)

// BaseAdapter provides a foundation for building federation server adapters.
// Embed this struct and override Connect, Close, and Execute.
type BaseAdapter struct {
	name         string
	adapterType  string
	version      string
	capabilities []string
	config       *base.ServerConfig
	connected    bool
	logger       *log.Logger
	retryConfig  *RetryConfig
	metrics      *AdapterMetrics
	mu           sync.RWMutex
}

// NewBaseAdapter creates a new base adapter of the given type
func NewBaseAdapter(adapterType string) *BaseAdapter {
	return &BaseAdapter{
		adapterType:  adapterType,
		version:      "1.0.0",
		capabilities: []string{"knowledge"},
		logger:       log.New(os.Stdout, fmt.Sprintf("[ADAPTER_%s] ", adapterType), log.LstdFlags),
		metrics:      NewAdapterMetrics(adapterType),
	}
}

// Connect stores and validates the configuration. Override in your adapter
// and call this first.
func (a *BaseAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if config == nil || config.Name == "" {
		return base.NewAdapterError(a.adapterType, "Connect", "server config requires a name", nil)
	}

	a.config = config
	a.name = config.Name

	if a.config.Timeout == 0 {
		a.config.Timeout = 30 * time.Second
	}

	if a.retryConfig == nil && config.MaxRetries > 0 {
		retry := DefaultRetryConfig()
		retry.MaxRetries = config.MaxRetries
		a.retryConfig = retry
	}

	a.connected = true
	a.logger.Printf("Adapter initialized: %s (type: %s)", config.Name, a.adapterType)

	return nil
}

// Close releases the connection. Override in your adapter.
func (a *BaseAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return nil
	}

	a.connected = false

	if a.config != nil {
		a.logger.Printf("Closed: %s", a.config.Name)
	}

	return nil
}

// Name returns the server instance name
func (a *BaseAdapter) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.name != "" {
		return a.name
	}
	return a.adapterType
}

// Type returns the adapter type
func (a *BaseAdapter) Type() string {
	return a.adapterType
}

// Version returns the adapter version
func (a *BaseAdapter) Version() string {
	return a.version
}

// Capabilities returns the capability tags
func (a *BaseAdapter) Capabilities() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.capabilities
}

// SetCapabilities sets the capability tags
func (a *BaseAdapter) SetCapabilities(tags []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capabilities = tags
}

// SetVersion sets the adapter version
func (a *BaseAdapter) SetVersion(version string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.version = version
}

// SetLogger sets a custom logger
func (a *BaseAdapter) SetLogger(logger *log.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = logger
}

// SetRetryConfig sets the retry configuration used by the adapter's Execute
func (a *BaseAdapter) SetRetryConfig(config *RetryConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retryConfig = config
}

// GetRetryConfig returns the retry configuration, or nil if retries are off
func (a *BaseAdapter) GetRetryConfig() *RetryConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.retryConfig
}

// GetMetrics returns the adapter metrics
func (a *BaseAdapter) GetMetrics() *AdapterMetrics {
	return a.metrics
}

// IsConnected returns the connection status
func (a *BaseAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// SetConnected sets the connection status. Primarily useful for testing.
func (a *BaseAdapter) SetConnected(connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
}

// GetConfig returns the server configuration
func (a *BaseAdapter) GetConfig() *base.ServerConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Log writes a log message with the adapter prefix
func (a *BaseAdapter) Log(format string, args ...interface{}) {
	a.logger.Printf(format, args...)
}

// GetTimeout returns the configured timeout or default
func (a *BaseAdapter) GetTimeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.config != nil && a.config.Timeout > 0 {
		return a.config.Timeout
	}
	return 30 * time.Second
}

// WithTimeout creates a context with the adapter's configured timeout
func (a *BaseAdapter) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.GetTimeout())
}

// GetOption retrieves an option value from config
func (a *BaseAdapter) GetOption(key string, defaultValue interface{}) interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.config == nil || a.config.Options == nil {
		return defaultValue
	}

	if val, ok := a.config.Options[key]; ok {
		return val
	}
	return defaultValue
}

// GetStringOption retrieves a string option
func (a *BaseAdapter) GetStringOption(key, defaultValue string) string {
	val := a.GetOption(key, defaultValue)
	if s, ok := val.(string); ok {
		return s
	}
	return defaultValue
}

// GetIntOption retrieves an integer option
func (a *BaseAdapter) GetIntOption(key string, defaultValue int) int {
	val := a.GetOption(key, defaultValue)
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

// GetFloatOption retrieves a float option
func (a *BaseAdapter) GetFloatOption(key string, defaultValue float64) float64 {
	val := a.GetOption(key, defaultValue)
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultValue
}

// GetBoolOption retrieves a boolean option
func (a *BaseAdapter) GetBoolOption(key string, defaultValue bool) bool {
	val := a.GetOption(key, defaultValue)
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultValue
}

// GetCredential retrieves a credential value
func (a *BaseAdapter) GetCredential(key string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.config == nil || a.config.Credentials == nil {
		return ""
	}
	return a.config.Credentials[key]
}

// RequireOptions verifies that every listed option key is present
func (a *BaseAdapter) RequireOptions(keys ...string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	name := a.name
	if name == "" {
		name = a.adapterType
	}

	for _, key := range keys {
		if a.config == nil || a.config.Options == nil {
			return base.NewAdapterError(name, "Connect", fmt.Sprintf("missing required option: %s", key), nil)
		}
		if _, ok := a.config.Options[key]; !ok {
			return base.NewAdapterError(name, "Connect", fmt.Sprintf("missing required option: %s", key), nil)
		}
	}
	return nil
}
