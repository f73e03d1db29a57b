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

// Package sdk provides the building blocks for InsightMesh federation
// server adapters.
//
// To create an adapter, embed BaseAdapter and implement the
// base.FederatedServer methods you need to specialize:
//
//	type MyAdapter struct {
//	    sdk.BaseAdapter
//	    client *myapi.Client
//	}
//
//	func (a *MyAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
//	    if err := a.BaseAdapter.Connect(ctx, config); err != nil {
//	        return err
//	    }
//	    // Custom connection logic
//	    return nil
//	}
//
// The SDK provides:
//   - BaseAdapter: embeddable base with config/option/credential access
//   - AdapterMetrics: atomic operation counters with latency percentiles
//   - Retry helpers: exponential backoff with jitter for transient failures
//
// The engine core never retries a server call. An adapter that wants
// resilience opts in with SetRetryConfig and wraps its backend calls in
// RetryWithBackoff.
package sdk
