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
Package engine implements adaptive query routing and federation for
InsightMesh.

# Overview

A query flows through four stages:

  - Classification: pattern scoring assigns one of five categories
    (semantic-search, structured-query, hybrid-workflow,
    agent-orchestration, document-analysis) with a confidence.
  - Planning: the category picks a primary engine and widening rules add
    secondary engines; low confidence switches the plan to parallel
    execution.
  - Execution: the primary engine runs first, secondaries follow
    (concurrently in parallel mode); a failed primary falls back to the
    most confident successful secondary.
  - Aggregation: federated queries fan out to capability-matched healthy
    servers under a shared category budget, and results are ranked by
    speed, confidence, and payload quality.

# Creating an Engine

	eng, err := engine.New(engine.DefaultRoutingConfig(), nil)
	if err != nil {
	    log.Fatal(err)
	}

	eng.RegisterEngine(engine.NewHTTPEngine("semantic-search", "http://search:9000", 0))

	result, err := eng.RouteQuery(ctx, "find recent risk indicators about Acme Corp", nil)

# Federation

Federation servers are registered with a capability-tagged descriptor:

	desc := &base.ServerDescriptor{
	    Name:           "warehouse",
	    CapabilityTags: []string{"finance", "analytics"},
	}
	eng.RegisterServer(desc, warehouseAdapter)

	result, err := eng.FederatedQuery(ctx, "revenue trend this quarter", nil)

# Streaming

RouteQueryStream and FederatedQueryStream return a channel of
StreamEvent: the classification, per-source progress in true completion
order, and a final complete event carrying the same AggregatedResult the
blocking call would return. The producer always closes the channel.

# Failure Semantics

Business failures (every engine failed, no healthy servers, timeouts)
come back inside the AggregatedResult with Success=false and Error set.
Go errors are reserved for caller mistakes such as an empty query or an
invalid config.

# Service Mode

Run() boots the HTTP service: gorilla/mux routes under /api/v1,
optional JWT auth, Prometheus metrics at /prometheus, and SSE streaming
via ?stream=true on the query endpoints.
*/
package engine
