package handlers

import "net/http"

// APIRootResponse identifies the service.
type APIRootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Version is set at build time via -ldflags.
var Version = "dev"

// APIRoot returns basic service metadata.
func APIRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIRootResponse{Name: "VitaPersonal API", Version: Version})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ResultResponse{Result: "ok"})
}
