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
	"log"
	"os"
	"time"

	"axonflow/insightmesh/adapters/base"
)

// DefaultProbeInterval is how often the monitor walks the registry.
const DefaultProbeInterval = 60 * time.Second

// minProbeTimeout is the floor applied to per-server probe deadlines.
const minProbeTimeout = 1 * time.Second

// HealthMonitor periodically probes registered servers and records the
// outcome on their descriptors. It never removes a server; an unhealthy
// server stays registered and is filtered out at dispatch time.
type HealthMonitor struct {
	registry   *ServerRegistry
	interval   time.Duration
	probeFloor time.Duration
	logger     *log.Logger
}

// NewHealthMonitor creates a monitor for the given registry.
// A non-positive interval falls back to DefaultProbeInterval.
func NewHealthMonitor(registry *ServerRegistry, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &HealthMonitor{
		registry:   registry,
		interval:   interval,
		probeFloor: minProbeTimeout,
		logger:     log.New(os.Stdout, "[HEALTH_MONITOR] ", log.LstdFlags),
	}
}

// Start launches the probe loop. The first pass runs immediately so
// servers registered at boot have health state before the first query;
// after that the loop fires on every interval until ctx is cancelled.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.logger.Printf("Starting health monitor (every %v)", m.interval)

	go func() {
		m.CheckNow(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Println("Stopping health monitor")
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// CheckNow probes every registered server once and records the results.
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	for _, desc := range m.registry.Snapshot() {
		server, err := m.registry.Get(desc.Name)
		if err != nil {
			// Deregistered mid-pass.
			continue
		}
		health := m.probe(ctx, desc, server)
		m.registry.setHealth(desc.Name, health, time.Now())
	}
}

// probe runs a single health check. Servers without a probe are assumed
// healthy. A probe error, an unhealthy report, or a panic all mark the
// server unhealthy.
func (m *HealthMonitor) probe(ctx context.Context, desc *base.ServerDescriptor, server base.FederatedServer) (health base.HealthState) {
	prober, ok := server.(base.HealthProber)
	if !ok {
		return base.HealthHealthy
	}

	timeout := time.Duration(desc.TimeoutBudgetMs) * time.Millisecond
	if timeout < m.probeFloor {
		timeout = m.probeFloor
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("Probe for server '%s' panicked: %v", desc.Name, r)
			health = base.HealthUnhealthy
		}
	}()

	status, err := prober.HealthProbe(probeCtx)
	if err != nil {
		m.logger.Printf("Probe for server '%s' failed: %v", desc.Name, err)
		return base.HealthUnhealthy
	}
	if status == nil || !status.Healthy {
		return base.HealthUnhealthy
	}

	return base.HealthHealthy
}
