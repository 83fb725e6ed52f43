package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"journal-api/internal/handlers"
	"journal-api/pkg/logger"
)

// Router holds the application routes behind the middleware pipeline
type Router struct {
	router *mux.Router
	log    logger.Logger
}

// NewRouter creates a router with the health check and JSON error handlers
func NewRouter(log logger.Logger) *Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.HealthCheckHandler).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFoundHandler)
	router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowedHandler)

	return &Router{
		router: router,
		log:    log,
	}
}

// Handle registers h for path. With no methods the route accepts any method.
func (r *Router) Handle(path string, h http.Handler, methods ...string) {
	route := r.router.Handle(path, h)
	if len(methods) > 0 {
		route.Methods(methods...)
	}

	r.log.Info("Registered route",
		logger.String("path", path),
		logger.Strings("methods", methods),
	)
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
