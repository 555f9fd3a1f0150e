// Package server wires HTTP handlers into a gorilla/mux router for the relay
// via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// SetupRoutes configures the application routes and wraps them with CORS for
// the configured origins. metrics may be nil.
func SetupRoutes(hub *Hub, metrics http.Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/favicon.ico", FaviconHandler).Methods(http.MethodGet)
	r.HandleFunc("/chat/", ChatPageHandler(hub.log)).Methods(http.MethodGet)
	// The client segment may be empty; ServeChat decides what that means.
	r.HandleFunc("/chat/{room_id}/{client_id:[^/]*}", hub.ServeChat)
	r.HandleFunc("/rooms", RoomsHandler(hub.registry, hub.log)).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: hub.origins.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(r)
}
