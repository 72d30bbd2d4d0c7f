package audit

import (
	"context"
	"strings"
)

// RequestMeta carries the request context that every audit event is tied to.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches request context used to enrich audit events.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	meta.RequestID = strings.TrimSpace(meta.RequestID)
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts the request meta, if present.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
