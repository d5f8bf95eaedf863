package api

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// httpMethods are the verbs that can appear under an OpenAPI path item.
// Anything else at that level (parameters, x- extensions, summaries) is
// not a route.
var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// documentRoutes extracts "METHOD /path" pairs from the embedded
// openapi.yaml document.
func documentRoutes(t *testing.T) map[string]bool {
	t.Helper()

	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(openapiSpec, &doc); err != nil {
		t.Fatalf("openapi.yaml does not parse: %v", err)
	}
	if len(doc.Paths) == 0 {
		t.Fatal("openapi.yaml declares no paths")
	}

	routes := make(map[string]bool)
	for path, item := range doc.Paths {
		if !strings.HasPrefix(path, "/") {
			t.Errorf("openapi.yaml path %q does not start with /", path)
		}
		for key := range item {
			if !httpMethods[strings.ToLower(key)] {
				continue
			}
			routes[strings.ToUpper(key)+" "+path] = true
		}
	}
	return routes
}

// routerRoutes walks Router() and extracts the same "METHOD /path" pairs.
// Router() only wires routes; handlers are never invoked, so a zero-value
// API is enough.
func routerRoutes(t *testing.T) map[string]bool {
	t.Helper()

	routes := make(map[string]bool)
	a := &API{}
	walkFn := func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
		// The document describes the API contract, not the doc-serving
		// routes themselves.
		if route == "/openapi.yaml" || strings.HasPrefix(route, "/docs") || strings.HasPrefix(route, "/redoc") {
			return nil
		}
		routes[method+" "+route] = true
		return nil
	}
	if err := chi.Walk(a.Router(), walkFn); err != nil {
		t.Fatalf("walking router: %v", err)
	}
	return routes
}

func missingFrom(have, want map[string]bool) []string {
	var out []string
	for route := range want {
		if !have[route] {
			out = append(out, route)
		}
	}
	sort.Strings(out)
	return out
}

// TestOpenAPIDocumentMatchesRouter keeps openapi.yaml and Router() in
// lockstep: a route added to one without the other fails here.
func TestOpenAPIDocumentMatchesRouter(t *testing.T) {
	document := documentRoutes(t)
	router := routerRoutes(t)

	if undocumented := missingFrom(document, router); len(undocumented) > 0 {
		t.Errorf("routes registered but absent from openapi.yaml:\n  %s",
			strings.Join(undocumented, "\n  "))
	}
	if stale := missingFrom(router, document); len(stale) > 0 {
		t.Errorf("openapi.yaml routes not registered by Router():\n  %s",
			strings.Join(stale, "\n  "))
	}
}
