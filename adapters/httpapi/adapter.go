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

// Package httpapi provides a federation adapter for REST knowledge
// services. The service receives the query as JSON on a configurable
// path and answers with a payload and a confidence.
package httpapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

const (
	// DefaultMaxResponseSize is the maximum response body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
	// defaultQueryPath is where queries are POSTed
	defaultQueryPath = "/query"
	// defaultHealthPath is probed by the health monitor
	defaultHealthPath = "/health"
)

// HTTPAPIAdapter serves federated queries from a REST knowledge service
type HTTPAPIAdapter struct {
	*sdk.BaseAdapter
	httpClient      *http.Client
	baseURL         string
	authType        string
	headers         map[string]string
	maxResponseSize int64
}

// serviceReply is the response shape a knowledge service answers with
type serviceReply struct {
	Payload    interface{}            `json:"payload"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// NewHTTPAPIAdapter creates a new HTTP API adapter instance
func NewHTTPAPIAdapter() *HTTPAPIAdapter {
	a := &HTTPAPIAdapter{
		BaseAdapter:     sdk.NewBaseAdapter("http_api"),
		headers:         make(map[string]string),
		maxResponseSize: DefaultMaxResponseSize,
	}
	a.SetCapabilities([]string{"query", "rest-api", "retry"})
	return a
}

// Connect validates the service URL and builds the HTTP client
func (a *HTTPAPIAdapter) Connect(ctx context.Context, config *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, config); err != nil {
		return err
	}

	if config.ConnectionURL == "" {
		return base.NewAdapterError(config.Name, "Connect", "connection_url is required", nil)
	}
	parsedURL, err := url.Parse(config.ConnectionURL)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "invalid connection_url format", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return base.NewAdapterError(config.Name, "Connect", "connection_url must use http or https scheme", nil)
	}
	a.baseURL = strings.TrimSuffix(config.ConnectionURL, "/")

	a.authType = a.GetStringOption("auth_type", "none")

	if headers, ok := a.GetOption("headers", nil).(map[string]interface{}); ok {
		for key, val := range headers {
			if strVal, ok := val.(string); ok {
				a.headers[key] = strVal
			}
		}
	}

	if maxSize := a.GetIntOption("max_response_size", 0); maxSize > 0 {
		a.maxResponseSize = int64(maxSize)
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if a.GetBoolOption("tls_skip_verify", false) {
		tlsConfig.InsecureSkipVerify = true
		a.Log("WARNING: TLS verification disabled for %s", config.Name)
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	a.httpClient = &http.Client{
		Timeout:   a.GetTimeout(),
		Transport: transport,
	}

	a.GetMetrics().RecordConnect()
	a.Log("Connected to HTTP API: %s (auth=%s, timeout=%v)", config.Name, a.authType, a.GetTimeout())

	return nil
}

// Close releases the HTTP client
func (a *HTTPAPIAdapter) Close(ctx context.Context) error {
	if a.httpClient != nil {
		a.httpClient.CloseIdleConnections()
		a.httpClient = nil
	}
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute POSTs the query to the service and returns its answer
func (a *HTTPAPIAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.httpClient == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "HTTP client not initialized", nil)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := sdk.NewTimer()
	run := func() (*base.QueryResponse, error) {
		return a.postQuery(queryCtx, req)
	}

	var resp *base.QueryResponse
	var err error
	if retry := a.GetRetryConfig(); retry != nil {
		resp, err = sdk.RetryWithBackoff(queryCtx, retry, run)
	} else {
		resp, err = run()
	}
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	return resp, err
}

// HealthProbe GETs the service health endpoint
func (a *HTTPAPIAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.httpClient == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "HTTP client not initialized",
		}, nil
	}

	healthURL := a.baseURL + a.GetStringOption("health_path", defaultHealthPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "HealthProbe", "failed to build request", err)
	}
	a.applyAuth(httpReq)
	a.applyHeaders(httpReq)

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
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
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.Log("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("health endpoint returned status %d", resp.StatusCode),
		}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"endpoint": healthURL},
		Timestamp: time.Now(),
	}, nil
}

// postQuery performs one query round trip
func (a *HTTPAPIAdapter) postQuery(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"request_id": req.RequestID,
		"query":      req.Query,
		"category":   req.Category,
		"context":    req.Context,
	})
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "failed to encode request", err)
	}

	queryURL := a.baseURL + a.GetStringOption("query_path", defaultQueryPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, queryURL, bytes.NewReader(body))
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.applyAuth(httpReq)
	a.applyHeaders(httpReq)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.Log("Error closing response body: %v", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxResponseSize))
	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var reply serviceReply
		if err := json.Unmarshal(data, &reply); err == nil && reply.Error != "" {
			return nil, base.NewAdapterError(a.Name(), "Execute", reply.Error, nil)
		}
		return nil, base.NewAdapterError(a.Name(), "Execute",
			fmt.Sprintf("service returned status %d", resp.StatusCode), nil)
	}

	var reply serviceReply
	if err := json.Unmarshal(data, &reply); err != nil || reply.Payload == nil {
		// Not the expected envelope; treat the whole body as the payload
		var raw interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, base.NewAdapterError(a.Name(), "Execute", "failed to decode response", err)
		}
		return &base.QueryResponse{
			Payload:    raw,
			Confidence: a.GetFloatOption("confidence", 0.7),
		}, nil
	}

	return &base.QueryResponse{
		Payload:    reply.Payload,
		Confidence: reply.Confidence,
		Metadata:   reply.Metadata,
	}, nil
}

// applyAuth applies authentication to the request
func (a *HTTPAPIAdapter) applyAuth(req *http.Request) {
	switch a.authType {
	case "bearer":
		if token := a.GetCredential("token"); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		if username := a.GetCredential("username"); username != "" {
			req.SetBasicAuth(username, a.GetCredential("password"))
		}
	case "api-key":
		if key := a.GetCredential("api_key"); key != "" {
			headerName := a.GetCredential("header_name")
			if headerName == "" {
				headerName = "X-API-Key"
			}
			req.Header.Set(headerName, key)
		}
	case "none", "":
		// No authentication
	}
}

// applyHeaders applies custom headers to the request
func (a *HTTPAPIAdapter) applyHeaders(req *http.Request) {
	for key, val := range a.headers {
		req.Header.Set(key, val)
	}
}
