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

/*
Package base provides the core interfaces and types for InsightMesh
federation server adapters.

# Overview

The base package defines the FederatedServer interface that every server
adapter must implement. A federation server is a capability-tagged knowledge
source (data warehouse, document store, cache, REST service) that the engine
fans queries out to and whose answers are ranked and aggregated.

# FederatedServer Interface

All adapters implement the FederatedServer interface:

	type FederatedServer interface {
	    // Lifecycle
	    Connect(ctx context.Context, config *ServerConfig) error
	    Close(ctx context.Context) error

	    // Query dispatch
	    Execute(ctx context.Context, req *QueryRequest) (*QueryResponse, error)

	    // Metadata
	    Name() string
	    Type() string
	    Version() string
	    Capabilities() []string
	}

Adapters that can cheaply verify their backing service additionally
implement HealthProber; the health monitor assumes servers without it are
healthy.

# Error Handling

Adapters wrap failures in AdapterError, which records the server name, the
operation, and the underlying cause:

	return nil, base.NewAdapterError(s.Name(), "Execute", "statement failed", err)

AdapterError implements Unwrap, so errors.Is and errors.As see through it.

# Health Semantics

ServerDescriptor.Health is advisory: the dispatcher consults it before
fan-out, but it may be stale between monitor passes. Only the health monitor
writes it.
*/
package base
