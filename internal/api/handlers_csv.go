package api

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"plotsweep/internal/queue"
)

// handleCSVDump serializes every open plot across every world/district to
// CSV. Generation is serialized with a short Redis lock (csv_dump_lock) so
// concurrent requests don't duplicate the underlying DB sweep.
func (s *Server) handleCSVDump(w http.ResponseWriter, r *http.Request) {
	acquired, err := s.queue.TryLock(r.Context(), queue.CSVDumpLockKey, queue.CSVDumpLockTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not acquire dump lock")
		return
	}
	if !acquired {
		writeJSONError(w, http.StatusTooManyRequests, "a dump is already in progress")
		return
	}
	defer s.queue.Unlock(r.Context(), queue.CSVDumpLockKey)

	worlds, err := s.reader.ListWorlds(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="plots.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()
	cw.Write([]string{"world_id", "district_id", "ward_number", "plot_number", "size", "known_price", "last_updated_time"})

	for _, world := range worlds {
		worldDetail, err := s.reader.WorldDetail(r.Context(), world.WorldID)
		if err != nil || worldDetail == nil {
			continue
		}
		for _, district := range worldDetail.Districts {
			detail, err := s.reader.DistrictDetail(r.Context(), world.WorldID, district.DistrictID)
			if err != nil || detail == nil {
				continue
			}
			for _, p := range detail.OpenPlots {
				cw.Write([]string{
					fmt.Sprintf("%d", p.WorldID),
					fmt.Sprintf("%d", p.DistrictID),
					fmt.Sprintf("%d", p.WardNumber),
					fmt.Sprintf("%d", p.PlotNumber),
					fmt.Sprintf("%d", p.Size),
					fmt.Sprintf("%d", p.KnownPrice),
					fmt.Sprintf("%.0f", p.LastUpdated),
				})
			}
		}
	}
}
