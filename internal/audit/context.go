package audit

import "context"

type clientContextKey struct{}

// WithClient stamps the condensed client label onto the context. Emit picks
// it up so every entry records which client drove the action.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientFromContext retrieves the label stamped by WithClient.
func ClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(clientContextKey{}).(string); ok {
		return c
	}
	return ""
}
