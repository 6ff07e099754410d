package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// AdminHeader carries the admin password on mutating requests.
const AdminHeader = "X-Admin-Password"

// adminToken extracts the password from X-Admin-Password or a Bearer token.
func adminToken(ctx huma.Context) string {
	if v := ctx.Header(AdminHeader); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// admin marks an operation as mutating: requests must carry the configured
// admin password. With no password configured the route is disabled.
func (h *APIHandler) admin(api huma.API) func(*huma.Operation) {
	return func(op *huma.Operation) {
		op.Errors = append(op.Errors, http.StatusUnauthorized, http.StatusForbidden)
		op.Middlewares = append(op.Middlewares, func(ctx huma.Context, next func(huma.Context)) {
			want := h.svc.AdminPassword
			if want == "" {
				huma.WriteErr(api, ctx, http.StatusForbidden, "admin routes are disabled")
				return
			}
			if subtle.ConstantTimeCompare([]byte(adminToken(ctx)), []byte(want)) != 1 {
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid admin password")
				return
			}
			next(ctx)
		})
	}
}
