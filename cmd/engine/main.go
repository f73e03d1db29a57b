// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the InsightMesh Query Engine service.
//
// The Query Engine is an Adaptive Query Routing & Federation service that:
// - Classifies natural-language queries into routing categories
// - Plans execution across specialized engine backends
// - Federates queries across registered knowledge servers
// - Aggregates and ranks results by confidence, freshness, and latency
//
// Usage:
//
//	./engine
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8082)
//	JWT_SECRET - HMAC secret for API authentication
//	ROUTING_CONFIG - routing rules YAML path (optional)
//	SERVERS_CONFIG - federation servers YAML path (optional)
//	SEMANTIC_SEARCH_ENDPOINT - semantic-search backend URL (optional)
//	STRUCTURED_DATA_ENDPOINT - structured-data backend URL (optional)
//	DOCUMENT_INTELLIGENCE_ENDPOINT - document backend URL (optional)
//	AGENT_ORCHESTRATOR_ENDPOINT - agent backend URL (optional)
//	BEDROCK_ENGINE - engine name to back with AWS Bedrock (optional)
//
// For more information, see https://docs.getaxonflow.com
package main

import (
	"axonflow/insightmesh/engine"
)

func main() {
	engine.Run()
}
