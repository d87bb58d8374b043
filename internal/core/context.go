package core

import "context"

type requestMetaKey struct{}

// RequestMeta identifies the client behind an import. It is stored with the
// session and with the history entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta returns a copy of ctx carrying meta.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the RequestMeta of ctx, or the zero value.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
