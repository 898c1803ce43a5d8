package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrickwarner/adslot/internal/middleware"
)

// Router registers the slot host routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/slot", s.SlotHandler).Methods("POST")
	r.HandleFunc("/windows/{id}", s.WindowHandler).Methods("GET")
	r.HandleFunc("/windows/{id}", s.CloseWindowHandler).Methods("DELETE")
	r.HandleFunc("/windows/{id}/events/{name}", s.WindowEventHandler).Methods("POST")
	r.HandleFunc("/scripts", s.ScriptHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")

	r.Handle("/metrics", promhttp.Handler())
	return r
}
