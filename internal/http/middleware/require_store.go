package middleware

import (
	"net/http"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// RequireStore rejects requests that did not resolve to a store. Storefront
// routes sit behind this guard so repositories can assume a store scope.
func RequireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.FromContext(r.Context()); !ok {
			common.JSONError(w, http.StatusBadRequest, "STORE_REQUIRED", "store could not be resolved from the request", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
