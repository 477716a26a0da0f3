// Package ingest implements the admitter (C2): validates an observation
// batch, normalizes each observation, derives its dedup key, and admits it
// into the Redis priority queue with the audit event appended.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plotsweep/internal/apperr"
	"plotsweep/internal/models"
	"plotsweep/internal/queue"
	"plotsweep/internal/repository"
)

// FutureTolerance is how far into the future (relative to wall clock) a
// client timestamp may be before the observation is rejected.
const FutureTolerance = 10 * time.Second

type Admitter struct {
	queue *queue.Queue
	repo  *repository.Repository
	now   func() time.Time
}

func NewAdmitter(q *queue.Queue, repo *repository.Repository) *Admitter {
	return &Admitter{queue: q, repo: repo, now: time.Now}
}

// rawObservation is the event-type-discriminated envelope every batch
// element decodes into first, before being normalized per variant.
type rawObservation struct {
	EventType string `json:"event_type"`
}

// BatchResult reports per-observation admission outcomes, matching the
// "batch-partial" InputValidation handling from the error taxonomy: a
// malformed or rejected observation does not fail the whole batch.
type BatchResult struct {
	Accepted int
	Rejected int
}

// AdmitBatch parses and admits a batch of observations on behalf of
// sweeperID (nil for unauthenticated best-effort submissions, though in
// practice /ingest always requires a bearer token).
func (a *Admitter) AdmitBatch(ctx context.Context, sweeperID *int64, body []byte) (BatchResult, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return BatchResult{}, apperr.Wrap(apperr.KindInputValidation, "malformed batch body", err)
	}

	var result BatchResult
	now := a.now()

	for _, raw := range raws {
		var disc rawObservation
		if err := json.Unmarshal(raw, &disc); err != nil {
			result.Rejected++
			continue
		}

		var obs []models.Observation
		var dedupNamespace string
		var err error

		switch models.EventType(disc.EventType) {
		case models.EventTypeHousingWardInfo:
			obs, err = WardPlotObservations(raw, now)
			dedupNamespace = "event.wardinfo.plot"
		case models.EventTypeLotteryInfo:
			var single *models.Observation
			single, dedupNamespace, err = parseLotteryObservation(raw, now)
			if single != nil {
				obs = []models.Observation{*single}
			}
		default:
			err = apperr.New(apperr.KindInputValidation, fmt.Sprintf("unknown event_type %q", disc.EventType))
		}

		if err != nil || len(obs) == 0 {
			result.Rejected++
			continue
		}

		for _, o := range obs {
			admitted, admitErr := a.admitOne(ctx, sweeperID, o, dedupNamespace, raw)
			if admitErr != nil {
				return result, admitErr
			}
			if admitted {
				result.Accepted++
			} else {
				result.Rejected++
			}
		}
	}

	return result, nil
}

// checkTimestamp rejects observations whose client/server timestamp is
// more than FutureTolerance ahead of wall clock (§4.1 step 1, §8 boundary:
// +10.001s rejected, +9.999s accepted).
func checkTimestamp(ts float64, now time.Time) error {
	limit := float64(now.UnixNano())/1e9 + FutureTolerance.Seconds()
	if ts > limit {
		return apperr.New(apperr.KindInputValidation, "observation timestamp too far in the future")
	}
	return nil
}

func parseLotteryObservation(raw json.RawMessage, now time.Time) (*models.Observation, string, error) {
	var l models.LotteryInfo
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, "", apperr.Wrap(apperr.KindInputValidation, "malformed LOTTERY_INFO", err)
	}
	if err := checkTimestamp(l.ClientTimestamp, now); err != nil {
		return nil, "", err
	}

	phase := lottoPhaseFromAvailability(l.AvailabilityType)
	entries := l.EntryCount
	phaseUntil := l.PhaseEndsAt

	obs := &models.Observation{
		Location: models.PlotLocation{
			WorldID:    l.WorldID,
			DistrictID: l.DistrictID,
			WardNumber: l.WardID,
			PlotNumber: l.PlotID,
		},
		Timestamp:       l.ClientTimestamp,
		IsOwned:         false,
		PurchaseSystem:  purchaseSystemFrom(l.PurchaseType, l.TenantType),
		LottoEntries:    &entries,
		LottoPhase:      &phase,
		LottoPhaseUntil: &phaseUntil,
		IsPlacardGrade:  true,
	}
	return obs, "event.lotteryinfo.plot", nil
}

func lottoPhaseFromAvailability(a models.AvailabilityType) models.LottoPhase {
	switch a {
	case models.AvailabilityAvailable:
		return models.LottoPhaseAvailable
	case models.AvailabilityResults:
		return models.LottoPhaseResults
	default:
		return models.LottoPhaseUnavailable
	}
}

// purchaseSystemFrom maps PurchaseType/TenantType to the output bitflag set
// per §6: PurchaseType=Lottery(1) sets LOTTERY; TenantType=Personal(2) sets
// INDIVIDUAL; TenantType=FreeCompany(1) sets FREE_COMPANY; any other
// TenantType value ("Unrestricted") sets both.
func purchaseSystemFrom(purchaseType, tenantType int) models.PurchaseSystem {
	var ps models.PurchaseSystem
	if purchaseType == 1 {
		ps |= models.PurchaseSystemLottery
	}
	switch tenantType {
	case 1:
		ps |= models.PurchaseSystemFreeCompany
	case 2:
		ps |= models.PurchaseSystemIndividual
	default:
		ps |= models.PurchaseSystemFreeCompany | models.PurchaseSystemIndividual
	}
	return ps
}

// WardPlotObservations expands a raw HOUSING_WARD_INFO batch element into
// its 60 per-plot observations. AdmitBatch calls it for every
// HOUSING_WARD_INFO element and admits each resulting observation.
func WardPlotObservations(raw json.RawMessage, now time.Time) ([]models.Observation, error) {
	var w models.HousingWardInfo
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, apperr.Wrap(apperr.KindInputValidation, "malformed HOUSING_WARD_INFO", err)
	}
	if w.LandIdent.WorldID == 0 {
		return nil, apperr.New(apperr.KindInputValidation, "world_id == 0")
	}
	if err := checkTimestamp(w.ServerTimestamp, now); err != nil {
		return nil, err
	}

	ps := purchaseSystemFrom(w.PurchaseType, w.TenantType)
	out := make([]models.Observation, 0, len(w.HouseInfoEntries))
	for i, entry := range w.HouseInfoEntries {
		var ownerName *string
		if n := strings.TrimSpace(entry.EstateOwnerName); n != "" {
			ownerName = &n
		}
		var price *int64
		if entry.HousePrice > 0 {
			p := entry.HousePrice
			price = &p
		}
		out = append(out, models.Observation{
			Location: models.PlotLocation{
				WorldID:    w.LandIdent.WorldID,
				DistrictID: w.LandIdent.TerritoryTypeID,
				WardNumber: w.LandIdent.WardNumber,
				PlotNumber: uint16(i),
			},
			Timestamp:      w.ServerTimestamp,
			IsOwned:        entry.InfoFlags.IsOwned(),
			OwnerName:      ownerName,
			Price:          price,
			PurchaseSystem: ps,
			IsPlacardGrade: false,
		})
	}
	return out, nil
}

// DedupKey derives the per-observation dedup key: sha256 over
// big_endian(world:u32, district:u32, ward:u16, plot:u16) concatenated with
// the owner name padded/truncated to 32 bytes, namespaced by event type.
func DedupKey(loc models.PlotLocation, ownerName string, namespace string) string {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], loc.WorldID)
	binary.BigEndian.PutUint32(buf[4:8], loc.DistrictID)
	binary.BigEndian.PutUint16(buf[8:10], loc.WardNumber)
	binary.BigEndian.PutUint16(buf[10:12], loc.PlotNumber)

	owner := make([]byte, 32)
	copy(owner, []byte(ownerName))

	h := sha256.Sum256(append(buf, owner...))
	return fmt.Sprintf("%s:%s", namespace, hex.EncodeToString(h[:]))
}

func ownerNameOf(o models.Observation) string {
	if o.OwnerName == nil {
		return ""
	}
	return *o.OwnerName
}

func (a *Admitter) admitOne(ctx context.Context, sweeperID *int64, obs models.Observation, namespace string, raw json.RawMessage) (bool, error) {
	key := DedupKey(obs.Location, ownerNameOf(obs), namespace)

	payload, err := json.Marshal(obs)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreFailure, "marshal observation", err)
	}

	admitted, err := a.queue.Admit(ctx, key, payload, obs.Timestamp)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreFailure, "admit into queue", err)
	}
	if !admitted {
		return false, nil
	}

	// Audit row is written only for admitted observations (§9 Open Question
	// decision); raw NULs are stripped since Postgres text columns reject them.
	sanitized := strings.ReplaceAll(string(raw), "\x00", "")
	tx, err := a.repo.BeginReconcile(ctx)
	if err != nil {
		return true, apperr.Wrap(apperr.KindStoreFailure, "begin audit tx", err)
	}
	defer tx.Rollback(ctx)

	if err := a.repo.RecordEvent(ctx, tx, models.Event{
		SweeperID:  sweeperID,
		Timestamp:  obs.Timestamp,
		EventType:  namespace,
		RawPayload: sanitized,
	}); err != nil {
		// Partial failure here is tolerated: the worker is still correct
		// because reconciliation is idempotent and doesn't depend on the
		// audit row.
		return true, nil
	}
	_ = tx.Commit(ctx)
	return true, nil
}
