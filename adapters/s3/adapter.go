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

// Package s3 provides an Amazon S3 federation adapter. It answers
// queries by matching object keys under a configured bucket and prefix
// against the query terms. S3-compatible services (MinIO, DigitalOcean
// Spaces, Cloudflare R2) work through the endpoint option.
package s3

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultMatchLimit caps how many matched objects one query returns
const defaultMatchLimit = 25

// minTermLength filters out short query words when matching keys
const minTermLength = 3

// s3API is the subset of the S3 client the adapter uses
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Adapter serves federated queries from an S3 bucket
type S3Adapter struct {
	*sdk.BaseAdapter
	client s3API
	bucket string
	prefix string
}

// NewS3Adapter creates a new S3 adapter instance
func NewS3Adapter() *S3Adapter {
	a := &S3Adapter{
		BaseAdapter: sdk.NewBaseAdapter("s3"),
	}
	a.SetCapabilities([]string{"query", "objects", "streaming"})
	return a
}

// Connect builds the S3 client and verifies the bucket is reachable
func (a *S3Adapter) Connect(ctx context.Context, cfg *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, cfg); err != nil {
		return err
	}

	if err := a.RequireOptions("bucket"); err != nil {
		return err
	}
	a.bucket = a.GetStringOption("bucket", "")
	a.prefix = a.GetStringOption("prefix", "")

	region := a.GetStringOption("region", "us-east-1")
	endpoint := a.GetStringOption("endpoint", "")
	forcePathStyle := a.GetBoolOption("force_path_style", false)

	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	// Explicit credentials if provided, otherwise the default chain
	accessKeyID := a.GetCredential("access_key_id")
	secretAccessKey := a.GetCredential("secret_access_key")
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, a.GetCredential("session_token"))
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to load AWS config", err)
	}

	s3Options := []func(*s3.Options){}
	if endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if forcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to verify bucket", err)
	}

	a.client = client
	a.GetMetrics().RecordConnect()
	a.Log("Connected to S3 (region: %s, bucket: %s)", region, a.bucket)

	return nil
}

// Close releases the S3 client
func (a *S3Adapter) Close(ctx context.Context) error {
	a.client = nil
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute lists objects under the configured prefix and returns those
// whose keys match the query terms
func (a *S3Adapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.client == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "S3 client not initialized", nil)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.GetTimeout()
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	terms := queryTerms(req.Query)
	limit := a.GetIntOption("limit", defaultMatchLimit)

	timer := sdk.NewTimer()
	matches, scanned, err := a.matchObjects(queryCtx, terms, limit)
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "object listing failed", err)
	}

	confidence := a.GetFloatOption("confidence", 0.75)
	if len(matches) == 0 {
		confidence = 0.1
	}

	return &base.QueryResponse{
		Payload: map[string]interface{}{
			"objects": matches,
			"count":   len(matches),
			"bucket":  a.bucket,
		},
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"scanned": scanned,
			"prefix":  a.prefix,
		},
	}, nil
}

// HealthProbe verifies the bucket is reachable
func (a *S3Adapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "S3 client not initialized",
		}, nil
	}

	start := time.Now()
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
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
		Details:   map[string]string{"bucket": a.bucket, "prefix": a.prefix},
		Timestamp: time.Now(),
	}, nil
}

// matchObjects pages through the listing and collects keys that match
// any query term. An empty term list matches everything.
func (a *S3Adapter) matchObjects(ctx context.Context, terms []string, limit int) ([]map[string]interface{}, int, error) {
	matches := make([]map[string]interface{}, 0)
	scanned := 0

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
	}
	if a.prefix != "" {
		input.Prefix = aws.String(a.prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() && len(matches) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, scanned, err
		}

		for _, obj := range page.Contents {
			scanned++
			key := aws.ToString(obj.Key)
			if !matchesTerms(key, terms) {
				continue
			}

			entry := map[string]interface{}{
				"key":        key,
				"size_bytes": aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				entry["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
			}
			matches = append(matches, entry)

			if len(matches) >= limit {
				break
			}
		}
	}

	return matches, scanned, nil
}

// queryTerms extracts the words worth matching from the query text
func queryTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) >= minTermLength {
			terms = append(terms, word)
		}
	}
	return terms
}

// matchesTerms reports whether the key contains any of the terms
func matchesTerms(key string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
