package apiclient

import (
	"context"
	"strings"
)

const (
	LoginPath      = "/login"
	AdminLoginPath = "/admin/login"
	adminPrefix    = "/admin"
)

type routePathKey struct{}

// WithRoutePath records the portal route a call is made on behalf of. A session torn down
// during the call sends the user to the login page matching that route.
func WithRoutePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, routePathKey{}, path)
}

// RoutePath returns the route recorded by WithRoutePath
func RoutePath(ctx context.Context) string {
	path, _ := ctx.Value(routePathKey{}).(string)
	return path
}

// LoginPathFor picks the admin login for anything under /admin, the standard login otherwise
func LoginPathFor(routePath string) string {
	if routePath == adminPrefix || strings.HasPrefix(routePath, adminPrefix+"/") {
		return AdminLoginPath
	}
	return LoginPath
}
