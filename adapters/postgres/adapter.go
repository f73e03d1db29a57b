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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultRowLimit caps how many rows one federated query returns
const defaultRowLimit = 50

// PostgresAdapter serves federated queries from a PostgreSQL database.
// The retrieval statement comes from the "query" option; a $1
// placeholder in it binds the incoming query text.
type PostgresAdapter struct {
	*sdk.BaseAdapter
	db *sql.DB
}

// NewPostgresAdapter creates a new PostgreSQL adapter instance
func NewPostgresAdapter() *PostgresAdapter {
	a := &PostgresAdapter{
		BaseAdapter: sdk.NewBaseAdapter("postgres"),
	}
	a.SetCapabilities([]string{"query", "sql", "connection_pooling"})
	return a
}

// Connect establishes a connection to PostgreSQL
func (a *PostgresAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, config); err != nil {
		return err
	}

	db, err := sql.Open("postgres", buildDSN(config))
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to open connection", err)
	}

	// Configure connection pool
	maxOpenConns := a.GetIntOption("max_open_conns", 25)
	maxIdleConns := a.GetIntOption("max_idle_conns", 5)
	connMaxLifetime := 5 * time.Minute
	if val := a.GetStringOption("conn_max_lifetime", ""); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			connMaxLifetime = duration
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to ping database", err)
	}

	a.db = db
	a.GetMetrics().RecordConnect()
	a.Log("Connected to PostgreSQL: %s (max_conns=%d)", config.Name, maxOpenConns)

	return nil
}

// Close closes the database connection
func (a *PostgresAdapter) Close(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return base.NewAdapterError(a.Name(), "Close", "failed to close connection", err)
		}
		a.db = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute runs the configured retrieval statement and returns the
// matching rows as the payload
func (a *PostgresAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.db == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "database not connected", nil)
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

	var args []interface{}
	if strings.Contains(statement, "$1") {
		args = append(args, req.Query)
	}

	timer := sdk.NewTimer()
	run := func() ([]map[string]interface{}, error) {
		return a.queryRows(queryCtx, statement, limit, args)
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
	}
	if len(rows) == limit {
		resp.Metadata = map[string]interface{}{"truncated": true}
	}

	return resp, nil
}

// HealthProbe verifies the database connection is healthy
func (a *PostgresAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.db == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "database not connected",
		}, nil
	}

	start := time.Now()
	err := a.db.PingContext(ctx)
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

	stats := a.db.Stats()
	details := map[string]string{
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// queryRows runs the statement and scans up to limit rows into maps
func (a *PostgresAdapter) queryRows(ctx context.Context, statement string, limit int, args []interface{}) ([]map[string]interface{}, error) {
	rows, err := a.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for text/varchar fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// buildDSN merges username and password credentials into the
// connection URL when they are supplied separately
func buildDSN(config *base.ServerConfig) string {
	dsn := config.ConnectionURL
	username := config.Credentials["username"]
	password := config.Credentials["password"]
	if username == "" && password == "" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}

	if username == "" && u.User != nil {
		username = u.User.Username()
	}
	if password == "" {
		u.User = url.User(username)
	} else {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}
