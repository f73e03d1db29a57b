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

// Package azureblob provides an Azure Blob Storage federation adapter.
// It answers queries by matching blob names in a configured container
// against the query terms. Authentication supports connection strings,
// shared account keys, and managed identity.
package azureblob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/sdk"
)

// defaultMatchLimit caps how many matched blobs one query returns
const defaultMatchLimit = 25

// minTermLength filters out short query words when matching names
const minTermLength = 3

// AzureBlobAdapter serves federated queries from an Azure Blob container
type AzureBlobAdapter struct {
	*sdk.BaseAdapter
	client        *azblob.Client
	serviceClient *service.Client
	accountName   string
	container     string
	prefix        string
}

// NewAzureBlobAdapter creates a new Azure Blob adapter instance
func NewAzureBlobAdapter() *AzureBlobAdapter {
	a := &AzureBlobAdapter{
		BaseAdapter: sdk.NewBaseAdapter("azureblob"),
	}
	a.SetCapabilities([]string{"query", "objects", "streaming"})
	return a
}

// Connect establishes a connection to Azure Blob Storage
func (a *AzureBlobAdapter) Connect(ctx context.Context, cfg *base.ServerConfig) error {
	if err := a.BaseAdapter.Connect(ctx, cfg); err != nil {
		return err
	}

	if err := a.RequireOptions("container"); err != nil {
		return err
	}
	a.accountName = a.GetStringOption("account_name", "")
	a.container = a.GetStringOption("container", "")
	a.prefix = a.GetStringOption("prefix", "")

	accountKey := a.GetCredential("account_key")
	connectionString := a.GetCredential("connection_string")
	useManagedIdentity := a.GetBoolOption("use_managed_identity", false)

	var err error
	switch {
	case connectionString != "":
		a.client, err = azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create client from connection string", err)
		}
		a.serviceClient, err = service.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create service client from connection string", err)
		}
	case accountKey != "":
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", a.accountName)
		cred, err := azblob.NewSharedKeyCredential(a.accountName, accountKey)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create shared key credential", err)
		}
		a.client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create client", err)
		}
		a.serviceClient, err = service.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create service client", err)
		}
	case useManagedIdentity:
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", a.accountName)
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create Azure credential", err)
		}
		a.client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create client", err)
		}
		a.serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return base.NewAdapterError(cfg.Name, "Connect", "failed to create service client", err)
		}
	default:
		return base.NewAdapterError(cfg.Name, "Connect", "no authentication method provided", nil)
	}

	if _, err := a.serviceClient.GetProperties(ctx, nil); err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to verify Azure Blob connectivity", err)
	}

	a.GetMetrics().RecordConnect()
	a.Log("Connected to Azure Blob Storage (account: %s, container: %s)", a.accountName, a.container)

	return nil
}

// Close releases the Azure Blob clients
func (a *AzureBlobAdapter) Close(ctx context.Context) error {
	a.client = nil
	a.serviceClient = nil
	a.GetMetrics().RecordClose()
	return a.BaseAdapter.Close(ctx)
}

// Execute lists blobs under the configured prefix and returns those
// whose names match the query terms
func (a *AzureBlobAdapter) Execute(ctx context.Context, req *base.QueryRequest) (*base.QueryResponse, error) {
	if a.serviceClient == nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "Azure Blob client not initialized", nil)
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
	matches, scanned, err := a.matchBlobs(queryCtx, terms, limit)
	a.GetMetrics().RecordExecute(timer.Duration(), err)

	if err != nil {
		return nil, base.NewAdapterError(a.Name(), "Execute", "blob listing failed", err)
	}

	confidence := a.GetFloatOption("confidence", 0.75)
	if len(matches) == 0 {
		confidence = 0.1
	}

	return &base.QueryResponse{
		Payload: map[string]interface{}{
			"blobs":     matches,
			"count":     len(matches),
			"container": a.container,
		},
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"scanned": scanned,
			"prefix":  a.prefix,
		},
	}, nil
}

// HealthProbe verifies Azure Blob connectivity
func (a *AzureBlobAdapter) HealthProbe(ctx context.Context) (*base.HealthStatus, error) {
	if a.serviceClient == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "Azure Blob client not initialized",
		}, nil
	}

	start := time.Now()
	_, err := a.serviceClient.GetProperties(ctx, nil)
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
		"account_name": a.accountName,
		"container":    a.container,
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// matchBlobs pages through the listing and collects blobs whose names
// match any query term. An empty term list matches everything.
func (a *AzureBlobAdapter) matchBlobs(ctx context.Context, terms []string, limit int) ([]map[string]interface{}, int, error) {
	containerClient := a.serviceClient.NewContainerClient(a.container)

	listOptions := &container.ListBlobsFlatOptions{}
	if a.prefix != "" {
		listOptions.Prefix = &a.prefix
	}

	pager := containerClient.NewListBlobsFlatPager(listOptions)

	matches := make([]map[string]interface{}, 0)
	scanned := 0
	for pager.More() && len(matches) < limit {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, scanned, err
		}

		for _, item := range resp.Segment.BlobItems {
			scanned++
			name := ""
			if item.Name != nil {
				name = *item.Name
			}
			if !matchesTerms(name, terms) {
				continue
			}

			entry := map[string]interface{}{"name": name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					entry["size_bytes"] = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					entry["last_modified"] = item.Properties.LastModified.UTC().Format(time.RFC3339)
				}
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

// matchesTerms reports whether the name contains any of the terms
func matchesTerms(name string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
