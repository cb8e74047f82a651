package api

import (
	"dispatch-route-service/internal/api/handlers"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"dispatch-route-service/internal/services"
	"net/http"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(planner *services.Planner, source ports.OrderSource) http.Handler {
	mux := http.NewServeMux()

	routeHandler := &handlers.RouteHandler{Planner: planner}
	boardHandler := &handlers.BoardHandler{Planner: planner, Source: source}

	routes := map[string]http.Handler{
		"/health":  http.HandlerFunc(handlers.Health),
		"/metrics": obs.MetricsHandler(),

		"/technicians": http.HandlerFunc(boardHandler.Technicians),
		"/board":       http.HandlerFunc(boardHandler.Board),
		"/map":         http.HandlerFunc(boardHandler.Map),

		"/routes":                 http.HandlerFunc(routeHandler.Get),
		"/routes/orders":          http.HandlerFunc(routeHandler.Orders),
		"/routes/orders/position": http.HandlerFunc(routeHandler.Move),
		"/routes/select":          http.HandlerFunc(routeHandler.Select),
		"/routes/bulk":            http.HandlerFunc(routeHandler.Bulk),
	}

	paths := make(map[string]bool, len(routes))
	for path, h := range routes {
		mux.Handle(path, h)
		paths[path] = true
	}

	return requestIDMiddleware(loggingMiddleware(mux, paths))
}
