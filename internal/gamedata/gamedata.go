// Package gamedata loads the static worlds/districts/plotinfo rows from
// CSV files once at process startup (both cmd/api and cmd/worker call it
// when GAMEDATA_DIR is set), mirroring the original upsert-all-
// from-a-directory shape.
package gamedata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"plotsweep/internal/models"
	"plotsweep/internal/repository"
)

// UpsertAll reads worlds.csv, districts.csv, and plotinfo.csv from dir and
// upserts their rows via repo. Missing files are treated as empty input
// rather than an error, since a deployment may supply only a subset.
func UpsertAll(ctx context.Context, repo *repository.Repository, dir string) error {
	worlds, err := loadWorlds(filepath.Join(dir, "worlds.csv"))
	if err != nil {
		return fmt.Errorf("load worlds.csv: %w", err)
	}
	districts, err := loadDistricts(filepath.Join(dir, "districts.csv"))
	if err != nil {
		return fmt.Errorf("load districts.csv: %w", err)
	}
	plotinfo, err := loadPlotInfo(filepath.Join(dir, "plotinfo.csv"))
	if err != nil {
		return fmt.Errorf("load plotinfo.csv: %w", err)
	}

	for _, w := range worlds {
		if err := repo.UpsertWorld(ctx, w); err != nil {
			return fmt.Errorf("upsert world %d: %w", w.WorldID, err)
		}
	}
	for _, d := range districts {
		if err := repo.UpsertDistrict(ctx, d); err != nil {
			return fmt.Errorf("upsert district %d: %w", d.DistrictID, err)
		}
	}
	for _, p := range plotinfo {
		if err := repo.UpsertPlotInfo(ctx, p); err != nil {
			return fmt.Errorf("upsert plotinfo %d/%d: %w", p.DistrictID, p.PlotNumber, err)
		}
	}
	return nil
}

func loadWorlds(path string) ([]models.World, error) {
	records, err := readCSV(path)
	if err != nil || records == nil {
		return nil, err
	}
	out := make([]models.World, 0, len(records))
	for _, rec := range records {
		worldID, err := strconv.ParseUint(rec["world_id"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("world_id: %w", err)
		}
		dcID, err := strconv.ParseUint(rec["datacenter_id"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("datacenter_id: %w", err)
		}
		out = append(out, models.World{
			WorldID:        uint32(worldID),
			Name:           rec["name"],
			DatacenterID:   uint32(dcID),
			DatacenterName: rec["datacenter_name"],
		})
	}
	return out, nil
}

func loadDistricts(path string) ([]models.District, error) {
	records, err := readCSV(path)
	if err != nil || records == nil {
		return nil, err
	}
	out := make([]models.District, 0, len(records))
	for _, rec := range records {
		districtID, err := strconv.ParseUint(rec["district_id"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("district_id: %w", err)
		}
		landSetID, err := strconv.ParseUint(rec["land_set_id"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("land_set_id: %w", err)
		}
		out = append(out, models.District{
			DistrictID: uint32(districtID),
			Name:       rec["name"],
			LandSetID:  uint32(landSetID),
		})
	}
	return out, nil
}

func loadPlotInfo(path string) ([]models.PlotInfo, error) {
	records, err := readCSV(path)
	if err != nil || records == nil {
		return nil, err
	}
	out := make([]models.PlotInfo, 0, len(records))
	for _, rec := range records {
		districtID, err := strconv.ParseUint(rec["district_id"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("district_id: %w", err)
		}
		plotNumber, err := strconv.ParseUint(rec["plot_number"], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("plot_number: %w", err)
		}
		houseSize, err := strconv.Atoi(rec["house_size"])
		if err != nil {
			return nil, fmt.Errorf("house_size: %w", err)
		}
		basePrice, err := strconv.ParseInt(rec["base_price"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("base_price: %w", err)
		}
		out = append(out, models.PlotInfo{
			DistrictID: uint32(districtID),
			PlotNumber: uint16(plotNumber),
			HouseSize:  houseSize,
			BasePrice:  basePrice,
		})
	}
	return out, nil
}

// readCSV parses a header + rows CSV file into header-keyed maps. Returns
// (nil, nil) if the file doesn't exist.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
