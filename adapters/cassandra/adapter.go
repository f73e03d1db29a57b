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

package cassandra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql" // Cassandra/Scylla driver

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultRowLimit caps how many rows one federated query returns
const defaultRowLimit = 50

// CassandraAdapter serves federated queries from a Cassandra or
// ScyllaDB keyspace. The retrieval statement comes from the "query"
// option; a ? placeholder in it binds the incoming query text.
type CassandraAdapter struct {
	*sdk.BaseAdapter
	cluster *gocql.ClusterConfig
	session *gocql.Session
}

// NewCassandraAdapter creates a new Cassandra adapter instance
func NewCassandraAdapter() *CassandraAdapter {
	a := &CassandraAdapter{
		BaseAdapter: sdk.NewBaseAdapter("cassandra"),
	}
	a.SetCapabilities([]string{"query", "cql", "consistency_levels"})
	return a
}

// Connect establishes a connection to the Cassandra cluster
func (a *CassandraAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, config); err != nil {
		return err
	}

	// Connection URL format: cassandra://host1:port,host2:port/keyspace
	hosts, keyspace, err := parseConnectionURL(config.ConnectionURL)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "invalid connection URL", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace

	consistency := a.GetStringOption("consistency", "QUORUM")
	cluster.Consistency = parseConsistency(consistency)

	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	} else {
		cluster.Timeout = 5 * time.Second
	}

	if username, ok := config.Credentials["username"]; ok && username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: config.Credentials["password"],
		}
	}

	cluster.NumConns = a.GetIntOption("num_conns", 2)

	session, err := cluster.CreateSession()
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to create session", err)
	}

	a.cluster = cluster
	a.session = session
	a.GetMetrics().RecordConnect()
	a.Log("Connected to Cassandra: %s (keyspace=%s, consistency=%s)", config.Name, keyspace, consistency)

	return nil
}

// Close closes the Cassandra session
func (a *CassandraAdapter) Close(ctx context.Context) error {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute runs the configured CQL statement and returns the matching
// rows as the payload
func (a *CassandraAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.session == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "session not connected", nil)
	}

	statement := a.GetStringOption("query", "")
	if statement == "" {
		return nil, base.NewAdapterError(a.Name(), "Execute", "no query option configured", nil)
	}
	limit := a.GetIntOption("limit", defaultRowLimit)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := sdk.NewTimer()
	run := func() ([]map[string]interface{}, error) {
		return a.queryRows(queryCtx, statement, limit, req.Query)
	}

	var rows []map[string]interface{}
	var err error
	if retry := a.GetRetryConfig(); retry != nil {
		rows, err = sdk.RetryWithBackoff(queryCtx, retry, run)
	} else {
		rows, err = run()
	}
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "query execution failed", err)
	}

	confidence := a.GetFloatOption("confidence", 0.8)
	if len(rows) == 0 {
		confidence = 0.1
	}

	resp := &base.QueryResponse{
		Payload: map[string]interface{}{
			"rows":      rows,
			"row_count": len(rows),
		},
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"keyspace": a.cluster.Keyspace,
		},
	}
	if len(rows) == limit {
		resp.Metadata["truncated"] = true
	}

	return resp, nil
}

// HealthProbe verifies the Cassandra session is healthy
func (a *CassandraAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.session == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "session not connected",
		}, nil
	}

	start := time.Now()
	var releaseVersion string
	err := a.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&releaseVersion)
	latency := time.Since(start)
	a.GetMetrics().RecordProbe(err)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	details := map[string]string{
		"release_version": releaseVersion,
		"keyspace":        a.cluster.Keyspace,
		"consistency":     a.cluster.Consistency.String(),
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// queryRows runs the CQL statement and scans up to limit rows
func (a *CassandraAdapter) queryRows(ctx context.Context, statement string, limit int, queryText string) ([]map[string]interface{}, error) {
	cql := a.session.Query(statement)
	if strings.Contains(statement, "?") {
		cql = cql.Bind(queryText)
	}
	cql = cql.WithContext(ctx)

	iter := cql.Iter()
	results := make([]map[string]interface{}, 0)
	for limit == 0 || len(results) < limit {
		row := make(map[string]interface{})
		if !iter.MapScan(row) {
			break
		}
		results = append(results, row)
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}

	return results, nil
}

// parseConnectionURL parses a Cassandra connection URL
// Format: cassandra://host1:port,host2:port/keyspace
func parseConnectionURL(url string) ([]string, string, error) {
	url = strings.TrimPrefix(url, "cassandra://")

	parts := strings.Split(url, "/")
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("invalid connection URL format (expected: cassandra://host:port/keyspace)")
	}

	hosts := strings.Split(parts[0], ",")
	keyspace := parts[1]

	if len(hosts) == 0 || hosts[0] == "" || keyspace == "" {
		return nil, "", fmt.Errorf("invalid connection URL: missing hosts or keyspace")
	}

	return hosts, keyspace, nil
}

// parseConsistency converts a string to a gocql.Consistency
func parseConsistency(level string) gocql.Consistency {
	switch strings.ToUpper(level) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}
