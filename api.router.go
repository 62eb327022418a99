package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// MiddlewareMap contains middlwares chain to
// use for public-facing and ops requests.
type MiddlewareMap struct {
	public *Middlewares
	ops    *Middlewares
}

// SetupRoutes enforces the api routes.
func (api *APIHandler) SetupRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.GET("/", m.public.Chain(api.Index))
	router.GET("/status", m.public.Chain(api.Status))

	api.SetupBookRoutes(router, m)

	if api.config != nil && api.config.OpsEndpointsEnable {
		api.SetupOpsRoutes(router, m)
	}

	notFound := m.public.Chain(api.NotFound)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound(w, r, nil)
	})
	return router
}

// SetupBookRoutes injects the books endpoints. Write operations require ROLE_USER.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) {
	user := api.RequireRole(RoleUser)

	router.GET("/books", m.public.Chain(api.ListBooks))
	router.GET("/books/:id", m.public.Chain(api.GetBook))
	router.POST("/books", m.public.Chain(user(api.CreateBook)))
	router.PUT("/books/:id", m.public.Chain(user(api.UpdateBook)))
	router.DELETE("/books/:id", m.public.Chain(user(api.DeleteBook)))
	router.GET("/catalog", m.public.Chain(api.GetCatalog))
}

// SetupOpsRoutes injects internal operations related endpoints.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) {
	router.GET("/ops/configs", m.ops.Chain(api.GetConfigs))
	router.GET("/ops/stats", m.ops.Chain(api.GetStatistics))
	router.GET("/ops/maintenance", m.ops.Chain(api.Maintenance))
	router.GET("/ops/mirror/books", m.ops.Chain(api.GetMirrorBooks))
	router.GET("/ops/mirror/books/:id", m.ops.Chain(api.GetMirrorBook))
	router.GET("/ops/debug/vars", m.ops.Chain(GetMemStats))
	router.GET("/ops/debug/gc", m.ops.Chain(api.RunGC))
	router.GET("/ops/debug/fos", m.ops.Chain(api.FreeOSMemory))

	if api.config.ProfilerEnable {
		for path, handle := range ProfilerHandlers() {
			router.GET("/ops/debug/pprof"+path, m.ops.Chain(handle))
		}
	}
}
