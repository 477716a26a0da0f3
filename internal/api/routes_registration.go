package api

import "github.com/gorilla/mux"

func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/hello", s.handleHello).Methods("POST", "OPTIONS")
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET", "OPTIONS")
	r.HandleFunc("/readyz", s.handleReadyz).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")

	r.HandleFunc("/ingest", s.handleIngest).Methods("POST", "OPTIONS")

	r.HandleFunc("/worlds", s.handleListWorlds).Methods("GET", "OPTIONS")
	r.HandleFunc("/worlds/{world_id}", s.handleWorldDetail).Methods("GET", "OPTIONS")
	r.HandleFunc("/worlds/{world_id}/{district_id}", s.handleDistrictDetail).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")

	r.HandleFunc("/csv/dump", s.handleCSVDump).Methods("GET", "OPTIONS")
}
