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
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	adapterconfig "axonflow/insightmesh/adapters/config"
	"axonflow/insightmesh/adapters/factory"
)

// InsightMesh Query Engine - Adaptive Query Routing & Federation
// This service classifies queries, routes them across the engine set,
// and federates them across registered knowledge servers.

// Run boots the engine service: config from env, engines and servers
// from their config files, health monitor, HTTP API, and a graceful
// drain on SIGINT/SIGTERM.
func Run() {
	log.Println("Starting InsightMesh Query Engine...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := initializeEngine(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	api := newAPIServer(eng, factory.New, []byte(os.Getenv("JWT_SECRET")))
	r := api.routes()

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := getEnv("PORT", "8082")
	handler := c.Handler(r)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		log.Printf("InsightMesh Query Engine listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	eng.Close(shutdownCtx)
	log.Println("InsightMesh Query Engine stopped")
}

// initializeEngine builds the engine from ROUTING_CONFIG, registers the
// configured engine backends and federation servers, and starts the
// health monitor.
func initializeEngine(ctx context.Context) (*Engine, error) {
	routingConfig := DefaultRoutingConfig()
	if path := os.Getenv("ROUTING_CONFIG"); path != "" {
		loaded, err := LoadRoutingConfig(path)
		if err != nil {
			return nil, err
		}
		routingConfig = loaded
		log.Printf("Routing config loaded from %s", path)
	}

	eng, err := New(routingConfig, nil)
	if err != nil {
		return nil, err
	}

	registerConfiguredEngines(eng)

	if path := os.Getenv("SERVERS_CONFIG"); path != "" {
		if err := registerConfiguredServers(ctx, eng, path); err != nil {
			log.Printf("⚠️  Failed to load servers config %s: %v", path, err)
		}
	} else {
		log.Println("SERVERS_CONFIG not set - starting with no federation servers")
	}

	eng.StartHealthMonitor(ctx)
	log.Println("Health monitor started ✅")

	return eng, nil
}

// registerConfiguredEngines binds the four engine names to the backends
// named in the environment. Engines without an endpoint stay
// unregistered; routing to them reports EngineUnavailable.
func registerConfiguredEngines(eng *Engine) {
	endpoints := map[string]string{
		EngineSemanticSearch:       os.Getenv("SEMANTIC_SEARCH_ENDPOINT"),
		EngineStructuredData:       os.Getenv("STRUCTURED_DATA_ENDPOINT"),
		EngineDocumentIntelligence: os.Getenv("DOCUMENT_INTELLIGENCE_ENDPOINT"),
		EngineAgentOrchestrator:    os.Getenv("AGENT_ORCHESTRATOR_ENDPOINT"),
	}

	for name, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		if err := eng.RegisterEngine(NewHTTPEngine(name, endpoint, 0)); err != nil {
			log.Printf("⚠️  Failed to register engine %s: %v", name, err)
			continue
		}
		log.Printf("Engine %s -> %s", name, endpoint)
	}

	// BEDROCK_ENGINE names the engine identity to back with Bedrock.
	if name := os.Getenv("BEDROCK_ENGINE"); name != "" {
		bedrock, err := NewBedrockEngine(name, os.Getenv("BEDROCK_REGION"), os.Getenv("BEDROCK_MODEL"))
		if err != nil {
			log.Printf("⚠️  Failed to initialize Bedrock engine: %v", err)
			return
		}
		if err := eng.RegisterEngine(bedrock); err != nil {
			log.Printf("⚠️  Failed to register Bedrock engine %s: %v", name, err)
			return
		}
		log.Printf("Engine %s -> AWS Bedrock ✅", name)
	}
}

// registerConfiguredServers loads the SERVERS_CONFIG YAML, resolves
// credential references, and builds, connects, and registers each
// entry. A bad entry is skipped, not fatal.
func registerConfiguredServers(ctx context.Context, eng *Engine, path string) error {
	loader, err := adapterconfig.NewYAMLServerFileLoader(path)
	if err != nil {
		return err
	}

	specs, err := loader.LoadServers()
	if err != nil {
		return err
	}

	resolver := adapterconfig.NewSecretsResolver()

	for _, spec := range specs {
		name := spec.Config.Name

		if err := resolver.ResolveConfig(ctx, spec.Config); err != nil {
			log.Printf("⚠️  Skipping server %s: %v", name, err)
			continue
		}

		server, err := factory.New(spec.Config)
		if err != nil {
			log.Printf("⚠️  Skipping server %s: %v", name, err)
			continue
		}
		if err := server.Connect(ctx, spec.Config); err != nil {
			log.Printf("⚠️  Failed to connect server %s: %v", name, err)
			continue
		}
		if err := eng.RegisterServer(spec.Descriptor, server); err != nil {
			log.Printf("⚠️  Failed to register server %s: %v", name, err)
			continue
		}
		log.Printf("Server %s (%s) registered ✅", name, spec.Config.Type)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
