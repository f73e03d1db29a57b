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

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// HTTPEngine fronts a query engine exposed over HTTP. It POSTs to
// /query and expects a JSON reply; /health answers the health check.
type HTTPEngine struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPEngine creates an HTTP-backed engine. A non-positive timeout
// defaults to 30 seconds.
func NewHTTPEngine(name, endpoint string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Name() string {
	return e.name
}

// Execute sends the query to the backend. A transport failure returns
// an error; a backend-reported failure returns a result with
// Success=false.
func (e *HTTPEngine) Execute(ctx context.Context, query string, queryContext map[string]interface{}) (*EngineResult, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"query":   query,
		"context": queryContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.endpoint+"/query", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	var reply struct {
		Success    *bool                  `json:"success"`
		Payload    map[string]interface{} `json:"payload"`
		Confidence float64                `json:"confidence"`
		Error      string                 `json:"error"`
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &reply); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if reply.Success != nil {
		success = *reply.Success
	}

	errMsg := reply.Error
	if !success && errMsg == "" {
		errMsg = fmt.Sprintf("engine returned status %d", resp.StatusCode)
	}

	return &EngineResult{
		EngineName: e.name,
		Success:    success,
		Payload:    reply.Payload,
		Confidence: reply.Confidence,
		Error:      errMsg,
	}, nil
}

// HealthCheck probes the backend /health endpoint.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", e.endpoint+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode != 200 {
		return fmt.Errorf("engine %s health returned status %d", e.name, resp.StatusCode)
	}
	return nil
}

// BedrockInvoker is the slice of the Bedrock runtime client the engine
// uses. The SDK client satisfies it; tests substitute a stub.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// bedrockAnswerConfidence is stamped on model answers. The runtime does
// not report a confidence, so a fixed value keeps ranking deterministic.
const bedrockAnswerConfidence = 0.85

// BedrockEngine answers queries with an Anthropic model on AWS Bedrock.
// AWS Signature V4 authentication comes from the ambient IAM role.
type BedrockEngine struct {
	name   string
	region string
	model  string
	client BedrockInvoker
}

// NewBedrockEngine creates a Bedrock-backed engine. Returns an error if
// AWS config loading fails rather than silently degrading.
func NewBedrockEngine(name, region, model string) (*BedrockEngine, error) {
	if region == "" {
		region = "us-east-1"
	}
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return &BedrockEngine{
		name:   name,
		region: region,
		model:  model,
		client: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func (e *BedrockEngine) Name() string {
	return e.name
}

// Execute prompts the model with the query and any context, and wraps
// the first content block as the answer payload.
func (e *BedrockEngine) Execute(ctx context.Context, query string, queryContext map[string]interface{}) (*EngineResult, error) {
	prompt := query
	if len(queryContext) > 0 {
		contextJSON, err := json.Marshal(queryContext)
		if err == nil {
			prompt = fmt.Sprintf("%s\n\nContext: %s", query, contextJSON)
		}
	}

	requestJSON, err := json.Marshal(map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        1024,
		"temperature":       0.2,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	answer := ""
	if len(resp.Content) > 0 {
		answer = resp.Content[0].Text
	}

	return &EngineResult{
		EngineName: e.name,
		Success:    true,
		Payload: map[string]interface{}{
			"answer":       answer,
			"model":        e.model,
			"tokens_used":  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			"input_tokens": resp.Usage.InputTokens,
		},
		Confidence: bedrockAnswerConfidence,
	}, nil
}
