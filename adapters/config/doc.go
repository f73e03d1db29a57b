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
Package config loads federation server definitions from YAML files and
resolves credential references through AWS Secrets Manager.

# Servers File

A servers file declares every federated server the engine should build
at startup: its adapter type, capability tags, priority, and per-server
timeout budget, plus the connection details the adapter needs.

	version: "1.0"
	servers:
	  warehouse:
	    type: postgres
	    enabled: true
	    capability_tags: [finance, analytics]
	    priority: 1
	    timeout_budget_ms: 5000
	    connection_url: ${WAREHOUSE_DATABASE_URL}
	    credentials:
	      password: aws-secrets://insightmesh/warehouse#password

Load it with the YAML loader:

	loader, err := config.NewYAMLServerFileLoader("servers.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	specs, err := loader.LoadServers()

LoadServers returns only enabled entries, sorted by name, each as a
ServerSpec pairing the registry descriptor with the adapter config.

# Environment Variables

File content is expanded before parsing. ${VAR_NAME}, $VAR_NAME, and
${VAR_NAME:-default} are all supported; undefined variables without a
default expand to the empty string.

# Secret References

Connection URLs and credential values may reference AWS Secrets Manager
instead of embedding the secret:

	aws-secrets://secret-name        resolves the "value" key
	aws-secrets://secret-name#key    resolves a key of a JSON secret

Resolve references in place before handing the config to an adapter:

	resolver := config.NewSecretsResolver()
	if err := resolver.ResolveConfig(ctx, spec.Config); err != nil {
	    log.Printf("skipping %s: %v", spec.Config.Name, err)
	}

Fetched secrets are cached for five minutes. The AWS client is created
lazily, so configs without references never require AWS credentials.

# Thread Safety

The resolver is safe for concurrent use. Loaders are not; confine each
loader to one goroutine.
*/
package config
