package obs

import "context"

// routeKey is the context key under which the matched route pattern is
// stored for downstream middleware.
type routeKey struct{}

func contextWithRoute(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey{}, pattern)
}

// RouteFromContext returns the matched route pattern, if any.
func RouteFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routeKey{}).(string); ok {
		return v
	}
	return ""
}
