package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter constructs a ServeMux with the ingress routes registered.
// Both webhook paths accept every channel; the payload's own object
// discriminator decides the routing.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/webhook", h.Receive)
	mux.HandleFunc("/webhook/meta", h.Receive)

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
