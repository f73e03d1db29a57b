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

import "fmt"

// ErrorKind classifies routing and federation failures.
type ErrorKind string

const (
	// ErrKindClassificationAmbiguous marks a query no pattern matched.
	// Resolved internally by the fallback heuristic, never surfaced.
	ErrKindClassificationAmbiguous ErrorKind = "classification_ambiguous"
	// ErrKindEngineUnavailable marks an engine name with no registered
	// implementation.
	ErrKindEngineUnavailable ErrorKind = "engine_unavailable"
	// ErrKindEngineExecution marks an engine call that returned an error.
	ErrKindEngineExecution ErrorKind = "engine_execution_error"
	// ErrKindAggregationEmpty marks a batch in which every source failed.
	ErrKindAggregationEmpty ErrorKind = "aggregation_empty"
	// ErrKindTimeout marks a federation batch that exceeded its shared
	// budget.
	ErrKindTimeout ErrorKind = "timeout_exceeded"
	// ErrKindNoHealthyServers marks a dispatch whose candidate list was
	// empty after the health filter.
	ErrKindNoHealthyServers ErrorKind = "no_healthy_servers"
)

// RoutingError is a typed routing failure. Most of these end up as the
// Error string of a failed result rather than a returned Go error.
type RoutingError struct {
	Kind    ErrorKind
	Source  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Source, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (cause: %v)", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// NewRoutingError creates a typed routing error.
func NewRoutingError(kind ErrorKind, source, message string, cause error) *RoutingError {
	return &RoutingError{
		Kind:    kind,
		Source:  source,
		Message: message,
		Err:     cause,
	}
}
