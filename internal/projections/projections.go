// Package projections implements the read-side API (C6): /worlds,
// /worlds/{wid}, and /worlds/{wid}/{did}, each built from the
// latest-per-plot projection plus the estimator in internal/estimate.
package projections

import (
	"context"

	"plotsweep/internal/apperr"
	"plotsweep/internal/estimate"
	"plotsweep/internal/models"
	"plotsweep/internal/repository"
)

type Reader struct {
	repo *repository.Repository
}

func NewReader(repo *repository.Repository) *Reader {
	return &Reader{repo: repo}
}

func (r *Reader) ListWorlds(ctx context.Context) ([]models.WorldSummary, error) {
	worlds, err := r.repo.ListWorlds(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "list worlds", err)
	}
	out := make([]models.WorldSummary, 0, len(worlds))
	for _, w := range worlds {
		out = append(out, models.WorldSummary{
			WorldID: w.WorldID, Name: w.Name,
			DatacenterID: w.DatacenterID, DatacenterName: w.DatacenterName,
		})
	}
	return out, nil
}

// WorldDetail computes the per-district rollup for a world: each
// district's open-plot count and oldest last_seen among its open plots.
// Returns (nil, nil) if the world doesn't exist.
func (r *Reader) WorldDetail(ctx context.Context, worldID uint32) (*models.WorldDetail, error) {
	world, err := r.repo.GetWorld(ctx, worldID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "get world", err)
	}
	if world == nil {
		return nil, nil
	}

	districts, err := r.repo.ListDistricts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "list districts", err)
	}

	detail := &models.WorldDetail{WorldID: world.WorldID, Name: world.Name}
	for _, d := range districts {
		latest, err := r.repo.LatestPlotStatesInDistrict(ctx, worldID, d.DistrictID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreFailure, "latest plot states", err)
		}
		summary := models.DistrictSummary{DistrictID: d.DistrictID, Name: d.Name}
		for i := range latest {
			s := &latest[i]
			if s.IsOwned {
				continue
			}
			summary.NumOpenPlots++
			if summary.NumOpenPlots == 1 || s.LastSeen < summary.OldestPlotTime {
				summary.OldestPlotTime = s.LastSeen
			}
		}
		detail.Districts = append(detail.Districts, summary)
	}
	return detail, nil
}

// DistrictDetail computes the full open-plot listing for one district,
// consulting history to find each open plot's transition pair.
// Returns (nil, nil) if the world or district doesn't exist.
func (r *Reader) DistrictDetail(ctx context.Context, worldID, districtID uint32) (*models.DistrictDetail, error) {
	world, err := r.repo.GetWorld(ctx, worldID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "get world", err)
	}
	if world == nil {
		return nil, nil
	}
	district, err := r.repo.GetDistrict(ctx, districtID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "get district", err)
	}
	if district == nil {
		return nil, nil
	}

	latest, err := r.repo.LatestPlotStatesInDistrict(ctx, worldID, districtID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "latest plot states", err)
	}

	detail := &models.DistrictDetail{DistrictID: district.DistrictID, Name: district.Name}
	for i := range latest {
		s := &latest[i]
		if s.IsOwned {
			continue
		}
		detail.NumOpenPlots++
		if detail.NumOpenPlots == 1 || s.LastSeen < detail.OldestPlotTime {
			detail.OldestPlotTime = s.LastSeen
		}

		firstOpen, lastSold, err := r.transitionPair(ctx, s)
		if err != nil {
			return nil, err
		}
		od := estimate.OpenPlotDetail(s, firstOpen, lastSold)

		info, err := r.repo.GetPlotInfo(ctx, districtID, s.PlotNumber)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreFailure, "get plot info", err)
		}
		if info != nil {
			od.Size = info.HouseSize
			if od.KnownPrice == 0 {
				od.KnownPrice = info.BasePrice
			}
		}

		detail.OpenPlots = append(detail.OpenPlots, od)
	}
	return detail, nil
}

// transitionPair walks history backward from latest's epoch to find the
// first state of latest's contiguous same-ownership run (firstOpen, which
// may be latest itself) and the most recent state of the opposite
// ownership immediately preceding it (lastSold, nil if none exists).
func (r *Reader) transitionPair(ctx context.Context, latest *models.PlotState) (firstOpen, lastOpposite *models.PlotState, err error) {
	history, err := r.repo.HistoryBefore(ctx, latest.Location(), latest.FirstSeen)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindStoreFailure, "history before", err)
	}

	firstOpen = latest
	for i := range history {
		h := &history[i]
		if h.IsOwned == latest.IsOwned {
			firstOpen = h
			continue
		}
		return firstOpen, h, nil
	}
	return firstOpen, nil, nil
}
