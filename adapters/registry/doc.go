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

// Package registry tracks federated servers and their health.
//
// Servers are registered explicitly with a descriptor (capability tags,
// priority, timeout budget) and an implementation. A HealthMonitor
// probes registered servers on a fixed interval; servers that do not
// implement base.HealthProber are assumed healthy. The monitor never
// removes a server, it only marks it unhealthy so dispatch can filter
// it out. Removal happens only through an explicit Deregister call.
package registry
