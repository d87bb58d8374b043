package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// withClient attaches the caller's address and user agent for import history.
// RemoteAddr has already been resolved by TrustedRealIP.
func withClient(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequestMeta(ctx, core.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}
