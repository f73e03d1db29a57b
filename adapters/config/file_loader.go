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

package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"axonflow/insightmesh/adapters/base"

	"gopkg.in/yaml.v3"
)

// ServersFile represents the root structure of a servers configuration file
type ServersFile struct {
	Version string                     `yaml:"version"`
	Servers map[string]ServerFileEntry `yaml:"servers,omitempty"`
}

// ServerFileEntry represents one federation server in the config file
type ServerFileEntry struct {
	Type            string                 `yaml:"type"`
	Enabled         bool                   `yaml:"enabled"`
	DisplayName     string                 `yaml:"display_name,omitempty"`
	Description     string                 `yaml:"description,omitempty"`
	CapabilityTags  []string               `yaml:"capability_tags,omitempty"`
	Priority        int                    `yaml:"priority,omitempty"`
	TimeoutBudgetMs int64                  `yaml:"timeout_budget_ms,omitempty"`
	ConnectionURL   string                 `yaml:"connection_url,omitempty"`
	Credentials     map[string]string      `yaml:"credentials,omitempty"`
	Options         map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs       int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries      int                    `yaml:"max_retries,omitempty"`
}

// ServerSpec is one fully materialized server definition: the registry
// descriptor plus the adapter config used to build and connect it.
type ServerSpec struct {
	Descriptor *base.ServerDescriptor
	Config     *base.ServerConfig
}

// YAMLServerFileLoader loads federation server definitions from a YAML file
type YAMLServerFileLoader struct {
	filePath string
	file     *ServersFile
}

// NewYAMLServerFileLoader creates a loader and parses the file once.
func NewYAMLServerFileLoader(filePath string) (*YAMLServerFileLoader, error) {
	loader := &YAMLServerFileLoader{
		filePath: filePath,
	}

	if err := loader.reload(); err != nil {
		return nil, err
	}

	return loader, nil
}

// reload reads and parses the configuration file
func (l *YAMLServerFileLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read servers file %s: %w", l.filePath, err)
	}

	// Expand environment variables in the content
	expanded := expandEnvVars(string(data))

	var file ServersFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return fmt.Errorf("failed to parse servers file: %w", err)
	}

	if err := ValidateServersFile(&file); err != nil {
		return err
	}

	l.file = &file
	return nil
}

// Reload re-reads the configuration file.
func (l *YAMLServerFileLoader) Reload() error {
	return l.reload()
}

// LoadServers returns the enabled server specs, sorted by name so
// registration order is stable across restarts.
func (l *YAMLServerFileLoader) LoadServers() ([]*ServerSpec, error) {
	if l.file == nil {
		return nil, fmt.Errorf("servers file not loaded")
	}

	var specs []*ServerSpec

	for name, entry := range l.file.Servers {
		if !entry.Enabled {
			continue
		}

		timeout := time.Duration(entry.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		options := entry.Options
		if options == nil {
			options = make(map[string]interface{})
		}

		credentials := entry.Credentials
		if credentials == nil {
			credentials = make(map[string]string)
		}

		specs = append(specs, &ServerSpec{
			Descriptor: &base.ServerDescriptor{
				Name:            name,
				CapabilityTags:  entry.CapabilityTags,
				Priority:        entry.Priority,
				TimeoutBudgetMs: entry.TimeoutBudgetMs,
			},
			Config: &base.ServerConfig{
				Name:          name,
				Type:          entry.Type,
				ConnectionURL: entry.ConnectionURL,
				Credentials:   credentials,
				Options:       options,
				Timeout:       timeout,
				MaxRetries:    entry.MaxRetries,
			},
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Config.Name < specs[j].Config.Name })
	return specs, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME, and ${VAR_NAME:-default} syntax.
// Undefined variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}

// validServerTypes is the set of adapter types the factory can build.
var validServerTypes = map[string]bool{
	"postgres":  true,
	"mysql":     true,
	"redis":     true,
	"mongodb":   true,
	"cassandra": true,
	"s3":        true,
	"azureblob": true,
	"gcs":       true,
	"http_api":  true,
}

// ValidateServersFile validates the structure of a servers file
func ValidateServersFile(file *ServersFile) error {
	if file.Version == "" {
		return fmt.Errorf("servers file must specify a version")
	}

	for name, entry := range file.Servers {
		if entry.Type == "" {
			return fmt.Errorf("server '%s' must specify a type", name)
		}
		if !validServerTypes[entry.Type] {
			return fmt.Errorf("server '%s' has invalid type '%s'", name, entry.Type)
		}
		if entry.TimeoutBudgetMs < 0 {
			return fmt.Errorf("server '%s' timeout_budget_ms must be non-negative", name)
		}
	}

	return nil
}

// GenerateExampleServersFile generates an example configuration file
func GenerateExampleServersFile() string {
	return `# InsightMesh Federation Servers
# Environment variables can be referenced using ${VAR_NAME} or
# ${VAR_NAME:-default} syntax. Credential values may also reference AWS
# Secrets Manager with aws-secrets://secret-name#key.

version: "1.0"

servers:
  # PostgreSQL warehouse example
  warehouse:
    type: postgres
    enabled: true
    display_name: "Analytics Warehouse"
    capability_tags: [finance, analytics]
    priority: 1
    timeout_budget_ms: 5000
    connection_url: ${WAREHOUSE_DATABASE_URL}
    credentials:
      username: ${WAREHOUSE_USER:-insightmesh}
      password: aws-secrets://insightmesh/warehouse#password
    options:
      query: "SELECT * FROM revenue_summary WHERE period >= now() - interval '90 days'"
      max_open_conns: 25
    timeout_ms: 30000
    max_retries: 3

  # Redis answer cache example
  answer-cache:
    type: redis
    enabled: true
    capability_tags: [knowledge]
    priority: 2
    timeout_budget_ms: 2000
    connection_url: ${REDIS_URL:-redis://localhost:6379}

  # Document store example
  contracts:
    type: s3
    enabled: false  # Enable when configured
    capability_tags: [documents, risk]
    priority: 2
    timeout_budget_ms: 8000
    options:
      bucket: ${CONTRACTS_BUCKET}
      prefix: "contracts/"
      region: ${AWS_REGION:-us-east-1}

  # Generic REST knowledge service
  helpdesk:
    type: http_api
    enabled: false
    capability_tags: [chat, knowledge]
    priority: 3
    timeout_budget_ms: 6000
    connection_url: ${HELPDESK_API_URL}
    credentials:
      api_key: aws-secrets://insightmesh/helpdesk#api_key
`
}
