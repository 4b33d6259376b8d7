package httpapi

import (
	"fmt"
	"net/http"
)

// apiPrefix is the versioned base path every resource route lives under.
const apiPrefix = "/api/v1"

// route describes a single endpoint: method, path relative to apiPrefix, and
// its handler.
type route struct {
	pattern string
	method  string
	handler http.HandlerFunc
}

// mountRoutes attaches the provided routes to the mux as method-qualified
// Go 1.22 ServeMux patterns, so a wrong-method request gets a 405 from the
// mux itself.
func mountRoutes(mux *http.ServeMux, routes ...route) {
	for _, rt := range routes {
		if rt.pattern == "" || rt.handler == nil {
			continue
		}
		mux.HandleFunc(fmt.Sprintf("%s %s%s", rt.method, apiPrefix, rt.pattern), rt.handler)
	}
}
