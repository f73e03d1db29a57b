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
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const ctxKeyAuth contextKey = "auth"

// authContext is the identity extracted from a validated token.
type authContext struct {
	UserID   string
	TenantID string
}

// jwtMiddleware validates Bearer tokens when a secret is configured.
// An empty secret disables authentication entirely.
func jwtMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			sendErrorResponse(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			sendErrorResponse(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			sendErrorResponse(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}

		auth := &authContext{
			UserID:   getClaimString(claims, "user_id"),
			TenantID: getClaimString(claims, "tenant_id"),
		}
		ctx := context.WithValue(r.Context(), ctxKeyAuth, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authFromContext returns the validated identity, or nil when requests
// run unauthenticated.
func authFromContext(ctx context.Context) *authContext {
	auth, _ := ctx.Value(ctxKeyAuth).(*authContext)
	return auth
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
