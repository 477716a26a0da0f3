package estimate

import (
	"testing"

	"plotsweep/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestOpenPlotDetail(t *testing.T) {
	cases := []struct {
		name         string
		latestOpen   models.PlotState
		firstOpen    models.PlotState
		lastSold     *models.PlotState
		wantMin      float64
		wantMax      float64
		wantEntries  int
	}{
		{
			name:       "no prior sold state",
			latestOpen: models.PlotState{FirstSeen: 5000, LastSeen: 5000},
			firstOpen:  models.PlotState{FirstSeen: 5000, LastSeen: 5000},
			lastSold:   nil,
			wantMin:    0,
			wantMax:    5000,
		},
		{
			name:       "bounded by prior sold state",
			latestOpen: models.PlotState{FirstSeen: 5000, LastSeen: 5000},
			firstOpen:  models.PlotState{FirstSeen: 5000, LastSeen: 5000},
			lastSold:   &models.PlotState{FirstSeen: 2000, LastSeen: 2000},
			wantMin:    2000,
			wantMax:    5000,
		},
		{
			name:        "unavailable lottery zeroes reported entries",
			latestOpen:  models.PlotState{FirstSeen: 5000, LastSeen: 5500, LottoEntries: ptr(3), LottoPhase: ptr(models.LottoPhaseUnavailable)},
			firstOpen:   models.PlotState{FirstSeen: 5000, LastSeen: 5000},
			lastSold:    nil,
			wantMin:     0,
			wantMax:     5000,
			wantEntries: 0,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := OpenPlotDetail(&c.latestOpen, &c.firstOpen, c.lastSold)
			if got.EstTimeOpenMin != c.wantMin {
				t.Errorf("EstTimeOpenMin = %v, want %v", got.EstTimeOpenMin, c.wantMin)
			}
			if got.EstTimeOpenMax != c.wantMax {
				t.Errorf("EstTimeOpenMax = %v, want %v", got.EstTimeOpenMax, c.wantMax)
			}
			if got.LottoEntries != c.wantEntries {
				t.Errorf("LottoEntries = %v, want %v", got.LottoEntries, c.wantEntries)
			}
		})
	}
}

func TestOpenPlotDetailPreservesStoredEntriesRegardlessOfOutput(t *testing.T) {
	// The persisted PlotState is untouched by this pure function; only the
	// emitted detail zeroes entries for an unavailable lottery.
	state := models.PlotState{FirstSeen: 1000, LastSeen: 1000, LottoEntries: ptr(7), LottoPhase: ptr(models.LottoPhaseUnavailable)}
	_ = OpenPlotDetail(&state, &state, nil)
	if state.LottoEntries == nil || *state.LottoEntries != 7 {
		t.Fatalf("expected stored LottoEntries to remain 7, got %v", state.LottoEntries)
	}
}

func TestSoldPlotDetail(t *testing.T) {
	cases := []struct {
		name      string
		firstSold models.PlotState
		lastOpen  *models.PlotState
		wantMin   float64
		wantMax   float64
	}{
		{
			name:      "no prior open state",
			firstSold: models.PlotState{FirstSeen: 2000, LastSeen: 2000},
			lastOpen:  nil,
			wantMin:   0,
			wantMax:   2000,
		},
		{
			name:      "bounded by prior open state",
			firstSold: models.PlotState{FirstSeen: 2000, LastSeen: 2000},
			lastOpen:  &models.PlotState{FirstSeen: 1000, LastSeen: 1000},
			wantMin:   1000,
			wantMax:   2000,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SoldPlotDetail(&c.firstSold, c.lastOpen)
			if got.EstTimeSoldMin != c.wantMin {
				t.Errorf("EstTimeSoldMin = %v, want %v", got.EstTimeSoldMin, c.wantMin)
			}
			if got.EstTimeSoldMax != c.wantMax {
				t.Errorf("EstTimeSoldMax = %v, want %v", got.EstTimeSoldMax, c.wantMax)
			}
		})
	}
}

func TestPlotUpdateCarriesPreviousPhase(t *testing.T) {
	prev := models.PlotState{LottoPhase: nil}
	obs := models.Observation{LottoEntries: ptr(3), LottoPhase: ptr(models.LottoPhaseAvailable), LottoPhaseUntil: ptr(9000.0)}

	got := PlotUpdate(&obs, &prev)
	if got.PreviousLottoPhase != nil {
		t.Fatalf("expected nil previous phase, got %v", *got.PreviousLottoPhase)
	}
	if got.LottoPhase == nil || *got.LottoPhase != models.LottoPhaseAvailable {
		t.Fatalf("expected new phase Available, got %v", got.LottoPhase)
	}

	prev2 := models.PlotState{LottoPhase: ptr(models.LottoPhaseAvailable)}
	obs2 := models.Observation{LottoPhase: ptr(models.LottoPhaseResults)}
	got2 := PlotUpdate(&obs2, &prev2)
	if got2.PreviousLottoPhase == nil || *got2.PreviousLottoPhase != models.LottoPhaseAvailable {
		t.Fatalf("expected previous phase Available, got %v", got2.PreviousLottoPhase)
	}
}
