package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"plotsweep/internal/apperr"
)

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := s.reader.ListWorlds(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	json.NewEncoder(w).Encode(worlds)
}

func (s *Server) handleWorldDetail(w http.ResponseWriter, r *http.Request) {
	worldID, err := parseUint32(mux.Vars(r)["world_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid world id")
		return
	}

	detail, err := s.reader.WorldDetail(r.Context(), worldID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if detail == nil {
		writeAppError(w, apperr.New(apperr.KindNotFound, "world not found"))
		return
	}
	json.NewEncoder(w).Encode(detail)
}

func (s *Server) handleDistrictDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	worldID, err := parseUint32(vars["world_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid world id")
		return
	}
	districtID, err := parseUint32(vars["district_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid district id")
		return
	}

	detail, err := s.reader.DistrictDetail(r.Context(), worldID, districtID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if detail == nil {
		writeAppError(w, apperr.New(apperr.KindNotFound, "world or district not found"))
		return
	}
	json.NewEncoder(w).Encode(detail)
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
