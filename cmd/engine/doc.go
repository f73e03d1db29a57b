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
Command engine runs the InsightMesh Query Engine service.

The Query Engine is the routing brain of InsightMesh. It classifies each
incoming query, selects the engine backend best suited to answer it, and
optionally fans the query out across federated knowledge servers,
merging the answers into a single ranked response.

# Usage

	engine [flags]

# Environment Variables

Optional:
  - PORT: HTTP server port (default: 8082)
  - JWT_SECRET: HMAC secret for bearer-token authentication
  - ROUTING_CONFIG: path to a routing rules YAML file
  - SERVERS_CONFIG: path to a federation servers YAML file
  - AWS_REGION: region for Secrets Manager credential resolution

# Engine Backends

Engine backends are HTTP services registered via environment variables.
The engine auto-registers whichever endpoints are set:

	export SEMANTIC_SEARCH_ENDPOINT="http://semantic:9001"
	export STRUCTURED_DATA_ENDPOINT="http://structured:9002"
	export DOCUMENT_INTELLIGENCE_ENDPOINT="http://docs:9003"
	export AGENT_ORCHESTRATOR_ENDPOINT="http://agents:9004"

Any one engine identity can instead be served by AWS Bedrock:

	export BEDROCK_ENGINE="semantic-search"
	export BEDROCK_REGION="us-east-1"
	export BEDROCK_MODEL="anthropic.claude-3-sonnet-20240229-v1:0"

# Federation Servers

Knowledge servers (databases, caches, object stores, REST services) are
declared in the SERVERS_CONFIG YAML file. Credentials may reference AWS
Secrets Manager with aws-secrets:// URIs.

# Example

	export PORT=8082
	export SERVERS_CONFIG="/etc/insightmesh/servers.yaml"
	export SEMANTIC_SEARCH_ENDPOINT="http://semantic:9001"
	./engine
*/
package main
