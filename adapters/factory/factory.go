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

// Package factory builds federation server adapters from their
// configured type. The engine wiring layer calls New for every entry
// in the servers file; tests can swap creators in a private registry.
package factory

import (
	"fmt"
	"log"
	"sync"

	"axonflow/insightmesh/adapters/azureblob"
	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/cassandra"
	"axonflow/insightmesh/adapters/gcs"
	"axonflow/insightmesh/adapters/httpapi"
	"axonflow/insightmesh/adapters/mongodb"
	"axonflow/insightmesh/adapters/mysql"
	"axonflow/insightmesh/adapters/postgres"
	"axonflow/insightmesh/adapters/redis"
	"axonflow/insightmesh/adapters/s3"
)

// Server type identifiers accepted in the servers file.
const (
	ServerPostgres  = "postgres"
	ServerMySQL     = "mysql"
	ServerRedis     = "redis"
	ServerMongoDB   = "mongodb"
	ServerCassandra = "cassandra"
	ServerS3        = "s3"
	ServerAzureBlob = "azureblob"
	ServerGCS       = "gcs"
	ServerHTTPAPI   = "http_api"
)

// ValidServerTypes lists every adapter type this build can create.
var ValidServerTypes = []string{
	ServerPostgres,
	ServerMySQL,
	ServerRedis,
	ServerMongoDB,
	ServerCassandra,
	ServerS3,
	ServerAzureBlob,
	ServerGCS,
	ServerHTTPAPI,
}

// IsValidServerType checks if the given server type is valid.
func IsValidServerType(serverType string) bool {
	for _, st := range ValidServerTypes {
		if st == serverType {
			return true
		}
	}
	return false
}

// AdapterCreator is a function that creates a new adapter instance.
type AdapterCreator func() base.FederatedServer

// AdapterRegistry holds registered adapter creators keyed by type.
type AdapterRegistry struct {
	mu       sync.RWMutex
	creators map[string]AdapterCreator
	logger   *log.Logger
}

// defaultRegistry is the global adapter registry instance.
var defaultRegistry *AdapterRegistry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the singleton AdapterRegistry.
// It registers all built-in adapters on first call.
func DefaultRegistry() *AdapterRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewAdapterRegistry()
		defaultRegistry.RegisterBuiltinAdapters()
	})
	return defaultRegistry
}

// NewAdapterRegistry creates a new empty adapter registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		creators: make(map[string]AdapterCreator),
		logger:   log.New(log.Writer(), "[ADAPTER_FACTORY] ", log.LstdFlags),
	}
}

// Register adds an adapter creator to the registry.
// Returns an error if the type is already registered.
func (r *AdapterRegistry) Register(serverType string, creator AdapterCreator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !IsValidServerType(serverType) {
		return fmt.Errorf("unknown server type: %s", serverType)
	}

	if _, exists := r.creators[serverType]; exists {
		return fmt.Errorf("server type '%s' already registered", serverType)
	}

	r.creators[serverType] = creator
	return nil
}

// RegisterOrReplace adds or replaces an adapter creator.
// This is useful for testing or replacing default implementations.
func (r *AdapterRegistry) RegisterOrReplace(serverType string, creator AdapterCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creators[serverType] = creator
}

// Create instantiates a new adapter of the given type.
// Returns an error if the type is not registered.
func (r *AdapterRegistry) Create(serverType string) (base.FederatedServer, error) {
	r.mu.RLock()
	creator, exists := r.creators[serverType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no adapter registered for server type: %s", serverType)
	}

	return creator(), nil
}

// IsRegistered checks if a server type has a creator registered.
func (r *AdapterRegistry) IsRegistered(serverType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.creators[serverType]
	return exists
}

// RegisteredTypes returns a list of all registered server types.
func (r *AdapterRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	return types
}

// Count returns the number of registered server types.
func (r *AdapterRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.creators)
}

// Clear removes all registered creators.
// Useful for testing.
func (r *AdapterRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators = make(map[string]AdapterCreator)
}

// RegisterBuiltinAdapters registers creators for every built-in adapter.
func (r *AdapterRegistry) RegisterBuiltinAdapters() {
	r.RegisterOrReplace(ServerPostgres, func() base.FederatedServer {
		return postgres.NewPostgresAdapter()
	})

	r.RegisterOrReplace(ServerMySQL, func() base.FederatedServer {
		return mysql.NewMySQLAdapter()
	})

	r.RegisterOrReplace(ServerRedis, func() base.FederatedServer {
		return redis.NewRedisAdapter()
	})

	r.RegisterOrReplace(ServerMongoDB, func() base.FederatedServer {
		return mongodb.NewMongoDBAdapter()
	})

	r.RegisterOrReplace(ServerCassandra, func() base.FederatedServer {
		return cassandra.NewCassandraAdapter()
	})

	r.RegisterOrReplace(ServerS3, func() base.FederatedServer {
		return s3.NewS3Adapter()
	})

	r.RegisterOrReplace(ServerAzureBlob, func() base.FederatedServer {
		return azureblob.NewAzureBlobAdapter()
	})

	r.RegisterOrReplace(ServerGCS, func() base.FederatedServer {
		return gcs.NewGCSAdapter()
	})

	r.RegisterOrReplace(ServerHTTPAPI, func() base.FederatedServer {
		return httpapi.NewHTTPAPIAdapter()
	})

	r.logger.Printf("Registered %d built-in adapters", r.Count())
}

// New builds an unconnected adapter for the given server config.
// The caller owns the Connect call; construction never touches the
// network.
func New(config *base.ServerConfig) (base.FederatedServer, error) {
	if config == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if config.Type == "" {
		return nil, fmt.Errorf("server '%s' has no type", config.Name)
	}

	server, err := DefaultRegistry().Create(config.Type)
	if err != nil {
		return nil, fmt.Errorf("server '%s': %w", config.Name, err)
	}
	return server, nil
}
