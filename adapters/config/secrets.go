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
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"axonflow/insightmesh/adapters/base"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretRefPrefix marks a config value as an AWS Secrets Manager
// reference: aws-secrets://secret-name or aws-secrets://secret-name#key.
const secretRefPrefix = "aws-secrets://"

// defaultSecretTTL controls how long fetched secrets are cached
const defaultSecretTTL = 5 * time.Minute

// secretsClient is the subset of the Secrets Manager API the resolver uses
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretCacheEntry holds a cached secret with expiration
type secretCacheEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// SecretsResolver replaces aws-secrets:// references in server configs
// with values fetched from AWS Secrets Manager. Fetched secrets are
// cached for a TTL, so a config with many references to the same secret
// hits AWS once. The client is created lazily on the first reference;
// configs without references never touch AWS.
type SecretsResolver struct {
	mu     sync.RWMutex
	cache  map[string]*secretCacheEntry
	ttl    time.Duration
	logger *log.Logger

	initOnce sync.Once
	client   secretsClient
	initErr  error
}

// NewSecretsResolver creates a resolver backed by AWS Secrets Manager.
// The AWS client is built from the default credential chain, with the
// region taken from AWS_REGION when set.
func NewSecretsResolver() *SecretsResolver {
	return &SecretsResolver{
		cache:  make(map[string]*secretCacheEntry),
		ttl:    defaultSecretTTL,
		logger: log.New(os.Stdout, "[SECRETS_RESOLVER] ", log.LstdFlags),
	}
}

// NewSecretsResolverWithClient creates a resolver with a caller-supplied
// client. Used in tests.
func NewSecretsResolverWithClient(client secretsClient, ttl time.Duration) *SecretsResolver {
	r := &SecretsResolver{
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: log.New(os.Stdout, "[SECRETS_RESOLVER] ", log.LstdFlags),
		client: client,
	}
	r.initOnce.Do(func() {})
	return r
}

// ensureClient builds the AWS client on first use
func (r *SecretsResolver) ensureClient(ctx context.Context) error {
	r.initOnce.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if region := os.Getenv("AWS_REGION"); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}

		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			r.initErr = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}

		r.client = secretsmanager.NewFromConfig(cfg)
		r.logger.Printf("Secrets Manager client initialized")
	})
	return r.initErr
}

// IsSecretRef reports whether the value is an aws-secrets:// reference.
func IsSecretRef(value string) bool {
	return strings.HasPrefix(value, secretRefPrefix)
}

// Resolve returns the value a reference points at. Plain values pass
// through unchanged. A reference without a #key fragment resolves the
// secret's "value" key, which is where non-JSON secrets land.
func (r *SecretsResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsSecretRef(value) {
		return value, nil
	}

	ref := strings.TrimPrefix(value, secretRefPrefix)
	name, key, found := strings.Cut(ref, "#")
	if !found {
		key = "value"
	}
	if name == "" {
		return "", fmt.Errorf("secret reference %s has no secret name", maskRef(value))
	}

	values, err := r.fetch(ctx, name)
	if err != nil {
		return "", err
	}

	resolved, ok := values[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key '%s'", maskRef(name), key)
	}

	return resolved, nil
}

// ResolveConfig resolves every reference in a server config in place:
// the connection URL and each credential value.
func (r *SecretsResolver) ResolveConfig(ctx context.Context, cfg *base.ServerConfig) error {
	resolved, err := r.Resolve(ctx, cfg.ConnectionURL)
	if err != nil {
		return fmt.Errorf("connection_url: %w", err)
	}
	cfg.ConnectionURL = resolved

	for k, v := range cfg.Credentials {
		resolved, err := r.Resolve(ctx, v)
		if err != nil {
			return fmt.Errorf("credential '%s': %w", k, err)
		}
		cfg.Credentials[k] = resolved
	}

	return nil
}

// fetch retrieves a secret, consulting the cache first
func (r *SecretsResolver) fetch(ctx context.Context, name string) (map[string]string, error) {
	r.mu.RLock()
	if entry, ok := r.cache[name]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.RUnlock()
		return entry.values, nil
	}
	r.mu.RUnlock()

	if err := r.ensureClient(ctx); err != nil {
		return nil, err
	}

	r.logger.Printf("Fetching secret: %s", maskRef(name))

	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve secret %s: %w", maskRef(name), err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(name))
	}

	// Secrets are stored as JSON objects; plain-string secrets are
	// exposed under the "value" key.
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(*result.SecretString), &values); err != nil {
		values = map[string]string{"value": *result.SecretString}
	}

	r.mu.Lock()
	r.cache[name] = &secretCacheEntry{
		values:    values,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()

	return values, nil
}

// ClearCache removes all cached secrets. Call after rotation so the
// next resolve fetches fresh values.
func (r *SecretsResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*secretCacheEntry)
}

// maskRef masks a secret name or reference for safe logging
func maskRef(ref string) string {
	if len(ref) <= 8 {
		return "****"
	}
	return ref[:4] + "****" + ref[len(ref)-4:]
}
