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
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
)

// QueryEngine is one of the four routable backends. Execute returns a
// result even on backend-reported failure; a non-nil error means the
// call itself could not be made (transport, marshaling).
type QueryEngine interface {
	Name() string
	Execute(ctx context.Context, query string, queryContext map[string]interface{}) (*EngineResult, error)
}

// HealthChecker is an optional engine capability used by the HTTP
// health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// knownEngineNames is the closed set of routable engine identities.
var knownEngineNames = map[string]bool{
	EngineSemanticSearch:       true,
	EngineStructuredData:       true,
	EngineDocumentIntelligence: true,
	EngineAgentOrchestrator:    true,
}

// EngineRegistry maps engine names to implementations. Names are
// validated at registration against the closed engine set, so a lookup
// miss at execution time means the engine was never registered, not
// that the name is unroutable.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[string]QueryEngine
	logger  *log.Logger
}

// NewEngineRegistry creates an empty registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{
		engines: make(map[string]QueryEngine),
		logger:  log.New(os.Stdout, "[ENGINE_REGISTRY] ", log.LstdFlags),
	}
}

// Register adds an engine under its own name. Unknown names and
// duplicates are rejected.
func (r *EngineRegistry) Register(engine QueryEngine) error {
	if engine == nil {
		return fmt.Errorf("engine must not be nil")
	}
	name := engine.Name()
	if name == "" {
		return fmt.Errorf("engine name must not be empty")
	}
	if !knownEngineNames[name] {
		return fmt.Errorf("unknown engine name '%s'", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("engine '%s' already registered", name)
	}

	r.engines[name] = engine
	r.logger.Printf("Registered engine: %s", name)
	return nil
}

// Get returns the engine registered under name.
func (r *EngineRegistry) Get(name string) (QueryEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[name]
	return engine, ok
}

// Names returns the registered engine names, sorted.
func (r *EngineRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered engines.
func (r *EngineRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
