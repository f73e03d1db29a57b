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

package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultKeyPrefix namespaces cached answers in a shared Redis
const defaultKeyPrefix = "insightmesh:answers:"

// RedisAdapter serves federated queries from a Redis answer cache.
// Answers are stored under a hash of the normalized query text; a miss
// is reported as an error so cached answers never outrank live sources
// by accident.
type RedisAdapter struct {
	*sdk.BaseAdapter
	client *redis.Client
}

// NewRedisAdapter creates a new Redis adapter instance
func NewRedisAdapter() *RedisAdapter {
	a := &RedisAdapter{
		BaseAdapter: sdk.NewBaseAdapter("redis"),
	}
	a.SetCapabilities([]string{"query", "cache", "kv-store"})
	return a
}

// Connect establishes a connection to Redis
func (a *RedisAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, config); err != nil {
		return err
	}

	opts, err := redis.ParseURL(config.ConnectionURL)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "invalid connection URL", err)
	}

	if password, ok := config.Credentials["password"]; ok && password != "" {
		opts.Password = password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = a.GetIntOption("pool_size", 100)
	opts.MinIdleConns = a.GetIntOption("min_idle_conns", 10)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to ping Redis", err)
	}

	a.client = client
	a.GetMetrics().RecordConnect()
	a.Log("Connected to Redis: %s (db=%d, pool_size=%d)", config.Name, opts.DB, opts.PoolSize)

	return nil
}

// Close closes the Redis connection
func (a *RedisAdapter) Close(ctx context.Context) error {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			return base.NewAdapterError(a.Name(), "Close", "failed to close connection", err)
		}
		a.client = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute looks up a cached answer for the query. A miss is an error;
// the dispatcher treats it as a failed source, not an empty answer.
func (a *RedisAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.client == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "client not connected", nil)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := a.cacheKey(req.Query)

	timer := sdk.NewTimer()
	raw, err := a.client.Get(queryCtx, key).Result()
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err == redis.Nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "no cached answer for query", nil)
	}
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "cache lookup failed", err)
	}

	ttl, _ := a.client.TTL(queryCtx, key).Result()

	confidence := a.GetFloatOption("confidence", 0.9)
	var payload interface{}
	entry := make(map[string]interface{})
	if err := json.Unmarshal([]byte(raw), &entry); err == nil {
		payload = entry
		if c, ok := entry["confidence"].(float64); ok {
			confidence = c
		}
	} else {
		payload = map[string]interface{}{"answer": raw}
	}

	return &base.QueryResponse{
		Payload:    payload,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"cache_key":   key,
			"ttl_seconds": int(ttl.Seconds()),
		},
	}, nil
}

// Store caches an answer for a query with the given TTL. The engine
// does not call this on its own; ingestion jobs populate the cache.
func (a *RedisAdapter) Store(ctx context.Context, query string, answer map[string]interface{}, ttl time.Duration) error {
	if a.client == nil {
		return base.NewAdapterError(a.Name(), "Store", "client not connected", nil)
	}

	data, err := json.Marshal(answer)
	if err != nil {
		return base.NewAdapterError(a.Name(), "Store", "failed to encode answer", err)
	}

	if err := a.client.Set(ctx, a.cacheKey(query), data, ttl).Err(); err != nil {
		return base.NewAdapterError(a.Name(), "Store", "failed to store answer", err)
	}
	return nil
}

// HealthProbe verifies the Redis connection is healthy
func (a *RedisAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "client not connected",
		}, nil
	}

	start := time.Now()
	err := a.client.Ping(ctx).Err()
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

	dbSize := a.client.DBSize(ctx).Val()
	details := map[string]string{
		"db_size": fmt.Sprintf("%d", dbSize),
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// cacheKey derives the cache key for a query: the configured prefix
// plus a short hash of the normalized text
func (a *RedisAdapter) cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	prefix := a.GetStringOption("key_prefix", defaultKeyPrefix)
	return prefix + hex.EncodeToString(sum[:8])
}
