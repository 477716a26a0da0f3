// Package estimate implements the time-bound estimator (C4): pure
// functions with no I/O that bound when a plot opened or sold given two
// adjacent PlotState rows.
package estimate

import "plotsweep/internal/models"

// OpenPlotDetail computes the current plot detail for a plot known to be
// open, given the newly-appended open state, the first state of that open
// epoch (may be the same row), and the last state before it was open
// (nil if no prior owned state exists).
func OpenPlotDetail(latestOpen, firstOpen *models.PlotState, lastSold *models.PlotState) models.OpenPlotDetail {
	detail := models.OpenPlotDetail{
		WorldID:        latestOpen.WorldID,
		DistrictID:     latestOpen.DistrictID,
		WardNumber:     latestOpen.WardNumber,
		PlotNumber:     latestOpen.PlotNumber,
		LastUpdated:    latestOpen.LastSeen,
		EstTimeOpenMax: firstOpen.FirstSeen,
	}

	if lastSold != nil {
		detail.EstTimeOpenMin = lastSold.LastSeen
	} else {
		detail.EstTimeOpenMin = 0
	}

	if latestOpen.LastSeenPrice != nil {
		detail.KnownPrice = *latestOpen.LastSeenPrice
	}

	if latestOpen.LottoEntries != nil {
		detail.LottoEntries = *latestOpen.LottoEntries
	}
	detail.LottoPhase = latestOpen.LottoPhase

	// Unavailable lotteries report zero entries in the outward detail even
	// though the stored row keeps whatever value it last saw.
	if latestOpen.LottoPhase != nil && *latestOpen.LottoPhase == models.LottoPhaseUnavailable {
		detail.LottoEntries = 0
	}

	return detail
}

// SoldPlotDetail computes the current plot detail for a plot known to be
// sold, given the newly-appended sold state and the last open state before
// it (nil if no prior open state exists).
func SoldPlotDetail(firstSold *models.PlotState, lastOpen *models.PlotState) models.SoldPlotDetail {
	detail := models.SoldPlotDetail{
		WorldID:        firstSold.WorldID,
		DistrictID:     firstSold.DistrictID,
		WardNumber:     firstSold.WardNumber,
		PlotNumber:     firstSold.PlotNumber,
		LastUpdated:    firstSold.LastSeen,
		EstTimeSoldMax: firstSold.FirstSeen,
	}

	if lastOpen != nil {
		detail.EstTimeSoldMin = lastOpen.LastSeen
	} else {
		detail.EstTimeSoldMin = 0
	}

	return detail
}

// PlotUpdate returns the latest known lottery fields plus the previous
// lottery phase carried from the state being extended/replaced.
func PlotUpdate(obs *models.Observation, previous *models.PlotState) models.PlotUpdateDetail {
	detail := models.PlotUpdateDetail{
		WorldID:         previous.WorldID,
		DistrictID:      previous.DistrictID,
		WardNumber:      previous.WardNumber,
		PlotNumber:      previous.PlotNumber,
		LottoEntries:    obs.LottoEntries,
		LottoPhase:      obs.LottoPhase,
		LottoPhaseUntil: obs.LottoPhaseUntil,
	}
	detail.PreviousLottoPhase = previous.LottoPhase
	return detail
}
