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

package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

const (
	// DefaultConnectTimeout is the default connection timeout
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize is the default maximum connection pool size
	DefaultMaxPoolSize = 100
	// DefaultMinPoolSize is the default minimum connection pool size
	DefaultMinPoolSize = 10
	// defaultDocumentLimit caps how many documents one query returns
	defaultDocumentLimit = 25
)

// MongoDBAdapter serves federated queries from a MongoDB collection.
// The "database" and "collection" options select the source; an
// optional "filter" option narrows it, and "use_text_search" adds a
// $text clause binding the incoming query text.
type MongoDBAdapter struct {
	*sdk.BaseAdapter
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoDBAdapter creates a new MongoDB adapter instance
func NewMongoDBAdapter() *MongoDBAdapter {
	a := &MongoDBAdapter{
		BaseAdapter: sdk.NewBaseAdapter("mongodb"),
	}
	a.SetCapabilities([]string{"query", "documents", "text-search"})
	return a
}

// Connect establishes a connection to MongoDB with connection pooling
func (a *MongoDBAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, config); err != nil {
		return err
	}

	if err := a.RequireOptions("database", "collection"); err != nil {
		return err
	}
	a.database = a.GetStringOption("database", "")
	a.collection = a.GetStringOption("collection", "")

	clientOpts := options.Client().ApplyURI(config.ConnectionURL)
	clientOpts.SetMaxPoolSize(uint64(a.GetIntOption("max_pool_size", DefaultMaxPoolSize)))
	clientOpts.SetMinPoolSize(uint64(a.GetIntOption("min_pool_size", DefaultMinPoolSize)))
	clientOpts.SetAppName(a.GetStringOption("app_name", "InsightMesh-Engine"))
	clientOpts.SetRetryReads(true)

	if username, ok := config.Credentials["username"]; ok && username != "" {
		clientOpts.SetAuth(options.Credential{
			Username: username,
			Password: config.Credentials["password"],
		})
	}

	connectTimeout := DefaultConnectTimeout
	if val := a.GetStringOption("connect_timeout", ""); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			connectTimeout = duration
		}
	}
	clientOpts.SetConnectTimeout(connectTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to connect to MongoDB", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return base.NewAdapterError(config.Name, "Connect", "failed to ping MongoDB", err)
	}

	a.client = client
	a.GetMetrics().RecordConnect()
	a.Log("Connected to MongoDB: %s (db=%s, collection=%s)", config.Name, a.database, a.collection)

	return nil
}

// Close disconnects from MongoDB
func (a *MongoDBAdapter) Close(ctx context.Context) error {
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			return base.NewAdapterError(a.Name(), "Close", "failed to disconnect", err)
		}
		a.client = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute finds matching documents and returns them as the payload
func (a *MongoDBAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.client == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "client not connected", nil)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	filter := a.buildFilter(req.Query)
	limit := a.GetIntOption("limit", defaultDocumentLimit)

	timer := sdk.NewTimer()
	run := func() ([]map[string]interface{}, error) {
		return a.findDocuments(queryCtx, filter, limit)
	}

	var docs []map[string]interface{}
	var err error
	if retry := a.GetRetryConfig(); retry != nil {
		docs, err = sdk.RetryWithBackoff(queryCtx, retry, run)
	} else {
		docs, err = run()
	}
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "find failed", err)
	}

	confidence := a.GetFloatOption("confidence", 0.8)
	if len(docs) == 0 {
		confidence = 0.1
	}

	return &base.QueryResponse{
		Payload: map[string]interface{}{
			"documents": docs,
			"count":     len(docs),
		},
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"database":   a.database,
			"collection": a.collection,
		},
	}, nil
}

// HealthProbe verifies the MongoDB connection is healthy
func (a *MongoDBAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "client not connected",
		}, nil
	}

	start := time.Now()
	err := a.client.Ping(ctx, readpref.Primary())
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

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"database": a.database},
		Timestamp: time.Now(),
	}, nil
}

// buildFilter combines the configured static filter with an optional
// $text clause for the incoming query
func (a *MongoDBAdapter) buildFilter(query string) bson.M {
	filter := bson.M{}
	if configured, ok := a.GetOption("filter", nil).(map[string]interface{}); ok {
		for k, v := range configured {
			filter[k] = v
		}
	}
	if a.GetBoolOption("use_text_search", false) && query != "" {
		filter["$text"] = bson.M{"$search": query}
	}
	return filter
}

// findDocuments runs the find and decodes up to limit documents
func (a *MongoDBAdapter) findDocuments(ctx context.Context, filter bson.M, limit int) ([]map[string]interface{}, error) {
	coll := a.client.Database(a.database).Collection(a.collection)

	findOpts := options.Find().SetLimit(int64(limit))
	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	docs := make([]map[string]interface{}, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
