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

package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"axonflow/insightmesh/adapters/base"
)

// defaultTimeoutBudgetMs is applied when a descriptor omits its budget.
const defaultTimeoutBudgetMs = 30000

// ServerRegistry tracks the federated servers available for dispatch.
// Thread-safe for concurrent access.
type ServerRegistry struct {
	servers     map[string]base.FederatedServer
	descriptors map[string]*base.ServerDescriptor
	mu          sync.RWMutex
	logger      *log.Logger
}

// NewServerRegistry creates an empty in-memory server registry.
func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{
		servers:     make(map[string]base.FederatedServer),
		descriptors: make(map[string]*base.ServerDescriptor),
		logger:      log.New(os.Stdout, "[SERVER_REGISTRY] ", log.LstdFlags),
	}
}

// Register adds a server under the descriptor's name.
// Returns an error if the descriptor is invalid or the name is taken.
// Health starts as unknown until the monitor's first pass.
func (r *ServerRegistry) Register(desc *base.ServerDescriptor, server base.FederatedServer) error {
	if desc == nil {
		return fmt.Errorf("server descriptor is required")
	}
	if desc.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if server == nil {
		return fmt.Errorf("server '%s' has no implementation", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[desc.Name]; exists {
		return fmt.Errorf("server '%s' already registered", desc.Name)
	}

	stored := cloneDescriptor(desc)
	if stored.TimeoutBudgetMs <= 0 {
		stored.TimeoutBudgetMs = defaultTimeoutBudgetMs
	}
	stored.Health = base.HealthUnknown
	stored.LastHealthCheckAt = time.Time{}

	r.servers[desc.Name] = server
	r.descriptors[desc.Name] = stored

	r.logger.Printf("Registered server '%s' (tags: %v, priority: %d)",
		stored.Name, stored.CapabilityTags, stored.Priority)

	return nil
}

// Deregister removes a server from the registry. The server stops being
// a dispatch candidate immediately; calls already in flight finish on
// their own.
func (r *ServerRegistry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}

	delete(r.servers, name)
	delete(r.descriptors, name)

	r.logger.Printf("Deregistered server '%s'", name)

	return nil
}

// Get retrieves a server implementation by name.
func (r *ServerRegistry) Get(name string) (base.FederatedServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, exists := r.servers[name]
	if !exists {
		return nil, fmt.Errorf("server '%s' not found", name)
	}

	return server, nil
}

// Descriptor returns a copy of a server's descriptor.
func (r *ServerRegistry) Descriptor(name string) (*base.ServerDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.descriptors[name]
	if !exists {
		return nil, fmt.Errorf("server '%s' not found", name)
	}

	return cloneDescriptor(desc), nil
}

// List returns all registered server names, sorted.
func (r *ServerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// HealthyNames returns the names of servers eligible for dispatch,
// sorted. Servers the monitor has not probed yet are assumed healthy;
// only a failed probe excludes a server.
func (r *ServerRegistry) HealthyNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name, desc := range r.descriptors {
		if desc.Health == base.HealthUnhealthy {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns copies of every descriptor, sorted by name.
func (r *ServerRegistry) Snapshot() []*base.ServerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*base.ServerDescriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		out = append(out, cloneDescriptor(desc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Count returns the number of registered servers.
func (r *ServerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// CloseAll closes every registered server. Used during graceful shutdown.
func (r *ServerRegistry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Println("Closing all servers...")

	for name, server := range r.servers {
		if err := server.Close(ctx); err != nil {
			r.logger.Printf("Error closing server '%s': %v", name, err)
		}
	}
}

// setHealth records a probe outcome. Only the health monitor writes
// health state; everything else reads it through Descriptor or Snapshot.
func (r *ServerRegistry) setHealth(name string, health base.HealthState, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.descriptors[name]
	if !exists {
		// Deregistered between the probe and the write.
		return
	}

	if desc.Health != health {
		r.logger.Printf("Server '%s' health: %s -> %s", name, desc.Health, health)
	}
	desc.Health = health
	desc.LastHealthCheckAt = at
}

func cloneDescriptor(desc *base.ServerDescriptor) *base.ServerDescriptor {
	out := *desc
	out.CapabilityTags = make([]string, len(desc.CapabilityTags))
	copy(out.CapabilityTags, desc.CapabilityTags)
	return &out
}
