// Package repository is the SQL half of C1: durable plot-state history,
// world/district/plotinfo static rows, the audit event log, and sweeper
// identities.
package repository

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"plotsweep/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(dbURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinConns = int32(n)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Migrate(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := r.db.Exec(context.Background(), string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.db.Close()
}

// Ping verifies the connection is alive, for readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// --- Static game data (worlds/districts/plotinfo) ---

func (r *Repository) UpsertWorld(ctx context.Context, w models.World) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO worlds (world_id, name, datacenter_id, datacenter_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (world_id) DO UPDATE SET
			name = EXCLUDED.name,
			datacenter_id = EXCLUDED.datacenter_id,
			datacenter_name = EXCLUDED.datacenter_name`,
		w.WorldID, w.Name, w.DatacenterID, w.DatacenterName)
	return err
}

func (r *Repository) UpsertDistrict(ctx context.Context, d models.District) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO districts (district_id, name, land_set_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (district_id) DO UPDATE SET
			name = EXCLUDED.name,
			land_set_id = EXCLUDED.land_set_id`,
		d.DistrictID, d.Name, d.LandSetID)
	return err
}

func (r *Repository) UpsertPlotInfo(ctx context.Context, p models.PlotInfo) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO plotinfo (district_id, plot_number, house_size, base_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (district_id, plot_number) DO UPDATE SET
			house_size = EXCLUDED.house_size,
			base_price = EXCLUDED.base_price`,
		p.DistrictID, p.PlotNumber, p.HouseSize, p.BasePrice)
	return err
}

func (r *Repository) ListWorlds(ctx context.Context) ([]models.World, error) {
	rows, err := r.db.Query(ctx, `SELECT world_id, name, datacenter_id, datacenter_name FROM worlds ORDER BY world_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.World
	for rows.Next() {
		var w models.World
		if err := rows.Scan(&w.WorldID, &w.Name, &w.DatacenterID, &w.DatacenterName); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) GetWorld(ctx context.Context, worldID uint32) (*models.World, error) {
	var w models.World
	err := r.db.QueryRow(ctx, `SELECT world_id, name, datacenter_id, datacenter_name FROM worlds WHERE world_id = $1`, worldID).
		Scan(&w.WorldID, &w.Name, &w.DatacenterID, &w.DatacenterName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListDistricts(ctx context.Context) ([]models.District, error) {
	rows, err := r.db.Query(ctx, `SELECT district_id, name, land_set_id FROM districts ORDER BY district_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.District
	for rows.Next() {
		var d models.District
		if err := rows.Scan(&d.DistrictID, &d.Name, &d.LandSetID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetDistrict(ctx context.Context, districtID uint32) (*models.District, error) {
	var d models.District
	err := r.db.QueryRow(ctx, `SELECT district_id, name, land_set_id FROM districts WHERE district_id = $1`, districtID).
		Scan(&d.DistrictID, &d.Name, &d.LandSetID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) GetPlotInfo(ctx context.Context, districtID uint32, plotNumber uint16) (*models.PlotInfo, error) {
	var p models.PlotInfo
	err := r.db.QueryRow(ctx, `SELECT district_id, plot_number, house_size, base_price FROM plotinfo WHERE district_id = $1 AND plot_number = $2`,
		districtID, plotNumber).Scan(&p.DistrictID, &p.PlotNumber, &p.HouseSize, &p.BasePrice)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Plot-state history (reconcile path) ---

// BeginReconcile opens the per-reconcile SQL transaction. Each reconcile
// runs in its own transaction per §4.3's failure semantics: on exception
// the caller rolls back and moves to the next queue item.
func (r *Repository) BeginReconcile(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// HistoricalStates returns every PlotState for loc ordered by last_seen
// descending, the order the reconciliation walk (§4.3) requires.
func (r *Repository) HistoricalStates(ctx context.Context, tx pgx.Tx, loc models.PlotLocation) ([]models.PlotState, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, world_id, district_id, ward_number, plot_number,
		       first_seen, last_seen, is_owned, owner_name, last_seen_price,
		       purchase_system, lotto_entries, lotto_phase, lotto_phase_until
		FROM plot_states
		WHERE world_id = $1 AND district_id = $2 AND ward_number = $3 AND plot_number = $4
		ORDER BY last_seen DESC
		FOR UPDATE`,
		loc.WorldID, loc.DistrictID, loc.WardNumber, loc.PlotNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStates(rows)
}

func scanStates(rows pgx.Rows) ([]models.PlotState, error) {
	var out []models.PlotState
	for rows.Next() {
		var s models.PlotState
		var purchaseSystem int16
		if err := rows.Scan(
			&s.ID, &s.WorldID, &s.DistrictID, &s.WardNumber, &s.PlotNumber,
			&s.FirstSeen, &s.LastSeen, &s.IsOwned, &s.OwnerName, &s.LastSeenPrice,
			&purchaseSystem, &s.LottoEntries, &s.LottoPhase, &s.LottoPhaseUntil,
		); err != nil {
			return nil, err
		}
		s.PurchaseSystem = models.PurchaseSystem(purchaseSystem)
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertState appends a brand-new PlotState row and returns its id.
func (r *Repository) InsertState(ctx context.Context, tx pgx.Tx, s *models.PlotState) (uint64, error) {
	var id uint64
	err := tx.QueryRow(ctx, `
		INSERT INTO plot_states
			(world_id, district_id, ward_number, plot_number, first_seen, last_seen,
			 is_owned, owner_name, last_seen_price, purchase_system,
			 lotto_entries, lotto_phase, lotto_phase_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		s.WorldID, s.DistrictID, s.WardNumber, s.PlotNumber, s.FirstSeen, s.LastSeen,
		s.IsOwned, s.OwnerName, s.LastSeenPrice, int16(s.PurchaseSystem),
		s.LottoEntries, s.LottoPhase, s.LottoPhaseUntil,
	).Scan(&id)
	return id, err
}

// ExtendState writes the (possibly) updated fields of an in-place extended
// or null-filled state back to storage.
func (r *Repository) ExtendState(ctx context.Context, tx pgx.Tx, s *models.PlotState) error {
	_, err := tx.Exec(ctx, `
		UPDATE plot_states SET
			last_seen = $2,
			owner_name = $3,
			last_seen_price = $4,
			purchase_system = $5,
			lotto_entries = $6,
			lotto_phase = $7,
			lotto_phase_until = $8
		WHERE id = $1`,
		s.ID, s.LastSeen, s.OwnerName, s.LastSeenPrice, int16(s.PurchaseSystem),
		s.LottoEntries, s.LottoPhase, s.LottoPhaseUntil,
	)
	return err
}

// RecordEvent appends an audit row. Never read by the core; purely
// forensic.
func (r *Repository) RecordEvent(ctx context.Context, tx pgx.Tx, e models.Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO events (sweeper_id, timestamp, event_type, raw_payload)
		VALUES ($1, $2, $3, $4)`,
		e.SweeperID, e.Timestamp, e.EventType, e.RawPayload)
	return err
}

func (r *Repository) TouchSweeper(ctx context.Context, sweeperID int64, name string, worldID uint32, at float64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sweepers (sweeper_id, name, world_id, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sweeper_id) DO UPDATE SET
			name = EXCLUDED.name, world_id = EXCLUDED.world_id, last_seen = EXCLUDED.last_seen`,
		sweeperID, name, worldID, at)
	return err
}

// --- Read projections (C6) ---

// LatestPlotStatesInDistrict returns the newest row per (ward, plot) for a
// district using a DISTINCT ON (ward, plot) ... ORDER BY ward, plot,
// last_seen DESC pattern.
func (r *Repository) LatestPlotStatesInDistrict(ctx context.Context, worldID, districtID uint32) ([]models.PlotState, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (ward_number, plot_number)
		       id, world_id, district_id, ward_number, plot_number,
		       first_seen, last_seen, is_owned, owner_name, last_seen_price,
		       purchase_system, lotto_entries, lotto_phase, lotto_phase_until
		FROM plot_states
		WHERE world_id = $1 AND district_id = $2
		ORDER BY ward_number, plot_number, last_seen DESC`,
		worldID, districtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStates(rows)
}

// HistoryBefore returns the PlotState rows for loc with last_seen strictly
// less than before, ordered descending — used by the estimator to find the
// transition pair for an open/sold plot in a read projection.
func (r *Repository) HistoryBefore(ctx context.Context, loc models.PlotLocation, before float64) ([]models.PlotState, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, world_id, district_id, ward_number, plot_number,
		       first_seen, last_seen, is_owned, owner_name, last_seen_price,
		       purchase_system, lotto_entries, lotto_phase, lotto_phase_until
		FROM plot_states
		WHERE world_id = $1 AND district_id = $2 AND ward_number = $3 AND plot_number = $4
		  AND last_seen < $5
		ORDER BY last_seen DESC`,
		loc.WorldID, loc.DistrictID, loc.WardNumber, loc.PlotNumber, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStates(rows)
}

// SweeperCount returns the number of rows in the sweepers table. GET /status
// does not call it; that handler reports only the Redis queue depth.
func (r *Repository) SweeperCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM sweepers`).Scan(&n)
	return n, err
}
