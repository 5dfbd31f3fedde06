package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/decode", s.handleDecode)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	return mux, nil
}
