// Package reconcile implements the reconciliation worker (C3): the
// per-plot algorithm that folds an incoming Observation into PlotState
// history and emits transition broadcasts.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"plotsweep/internal/apperr"
	"plotsweep/internal/estimate"
	"plotsweep/internal/models"
	"plotsweep/internal/queue"
	"plotsweep/internal/repository"
)

// PopTimeout bounds how long a single BZPOPMIN blocks before the worker
// re-checks its shutdown signal.
const PopTimeout = 5 * time.Second

type Worker struct {
	repo  *repository.Repository
	queue *queue.Queue

	// ErrorBackoff is how long the loop sleeps after an infrastructure
	// failure (queue/db unreachable) before retrying.
	ErrorBackoff time.Duration
}

func NewWorker(repo *repository.Repository, q *queue.Queue) *Worker {
	return &Worker{repo: repo, queue: q, ErrorBackoff: 10 * time.Second}
}

// Start runs the cooperative pop-process loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("[reconcile] tick error: %v", err)
			if apperr.KindOf(err) == apperr.KindStoreFailure {
				sentry.CaptureException(err)
			}
			time.Sleep(w.ErrorBackoff)
		}
	}
}

// tick pops one observation and reconciles it. Infrastructure errors
// (queue/db unreachable) are returned to the caller to trigger backoff;
// business-level problems (malformed payload, history inconsistency) are
// logged and swallowed so the loop keeps draining the queue.
func (w *Worker) tick(ctx context.Context) error {
	key, _, err := w.queue.PopNext(ctx, PopTimeout)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	payload, err := w.queue.GetAndDelete(ctx, key)
	if err != nil {
		return err
	}
	if payload == nil {
		log.Printf("[reconcile] key %s expired before dequeue, skipping", key)
		return nil
	}

	var obs models.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		log.Printf("[reconcile] malformed payload for key %s: %v", key, err)
		return nil
	}

	if err := w.reconcile(ctx, obs); err != nil {
		if apperr.KindOf(err) == apperr.KindStoreFailure {
			return err
		}
		log.Printf("[reconcile] %v", err)
	}
	return nil
}

// reconcile runs the per-plot algorithm in its own SQL transaction, rolled
// back on any error so the next observation for the same plot can retry
// against unmutated history.
func (w *Worker) reconcile(ctx context.Context, obs models.Observation) error {
	tx, err := w.repo.BeginReconcile(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreFailure, "begin reconcile tx", err)
	}
	defer tx.Rollback(ctx)

	states, err := w.repo.HistoricalStates(ctx, tx, obs.Location)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreFailure, "load historical states", err)
	}

	msg, err := w.walk(ctx, tx, obs, states)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindStoreFailure, "commit reconcile tx", err)
	}

	if msg != nil {
		w.publish(ctx, *msg)
	}
	return nil
}

// walk is the §4.3 per-plot algorithm: descend the history in last_seen
// order looking for where the observation lands.
func (w *Worker) walk(ctx context.Context, tx pgx.Tx, obs models.Observation, states []models.PlotState) (*models.WSMessage, error) {
	for i := range states {
		s := &states[i]

		switch {
		case obs.Timestamp > s.LastSeen:
			return w.handleNewer(ctx, tx, obs, s, i == 0)

		case s.FirstSeen <= obs.Timestamp && obs.Timestamp <= s.LastSeen:
			return nil, w.handleIntermediate(ctx, tx, obs, s)

		default:
			// obs.Timestamp < s.FirstSeen: keep walking to the previous epoch.
		}
	}

	// Exhausted history with no hit: first-ever observation for this plot.
	n := newStateFromObservation(obs)
	if _, err := w.repo.InsertState(ctx, tx, n); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "insert first state", err)
	}
	return nil, nil
}

// handleNewer covers §4.3 step 2: obs is newer than every state seen so
// far in the walk. is_newest is true only on the first loop iteration —
// transition broadcasts only fire relative to the plot's current state.
func (w *Worker) handleNewer(ctx context.Context, tx pgx.Tx, obs models.Observation, s *models.PlotState, isNewest bool) (*models.WSMessage, error) {
	if !shouldCreateNewState(obs, s) {
		previous := *s
		applyObservation(s, obs)
		if err := w.repo.ExtendState(ctx, tx, s); err != nil {
			return nil, apperr.Wrap(apperr.KindStoreFailure, "extend state", err)
		}
		// An in-place extend still broadcasts a plot_update when it carries
		// fresh lottery data and the plot remains open — distinct from the
		// distinguishing-attribute test, which governs extend-vs-append, not
		// broadcast-vs-silent.
		if isNewest && !s.IsOwned && hasLotteryData(obs) {
			detail := estimate.PlotUpdate(&obs, &previous)
			return &models.WSMessage{Type: models.WSTypePlotUpdate, Data: detail}, nil
		}
		return nil, nil
	}

	n := newStateFromObservation(obs)
	if _, err := w.repo.InsertState(ctx, tx, n); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "insert state", err)
	}

	if !isNewest {
		return nil, nil
	}
	return transitionMessage(n, s), nil
}

// handleIntermediate covers §4.3 step 3: obs falls inside an existing
// epoch. Matching distinguishing attributes means an idempotent null-fill;
// otherwise the history is inconsistent and the observation is dropped
// with a warning, touching nothing.
func (w *Worker) handleIntermediate(ctx context.Context, tx pgx.Tx, obs models.Observation, s *models.PlotState) error {
	if shouldCreateNewState(obs, s) {
		log.Printf("[reconcile] history inconsistency: observation for plot %+v falls within state %d but does not match it", obs.Location, s.ID)
		return nil
	}
	applyObservation(s, obs)
	if err := w.repo.ExtendState(ctx, tx, s); err != nil {
		return apperr.Wrap(apperr.KindStoreFailure, "fill intermediate state", err)
	}
	return nil
}

// publish marshals and sends a broadcast message, logging delivery
// failures rather than failing the reconcile that already committed.
func (w *Worker) publish(ctx context.Context, msg models.WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[reconcile] marshal broadcast: %v", err)
		return
	}
	if err := w.queue.Publish(ctx, payload); err != nil {
		log.Printf("[reconcile] publish broadcast: %v", apperr.Wrap(apperr.KindDeliveryFailure, "publish", err))
	}
}

// transitionMessage implements §4.3.2: decide whether appending n after s
// is an open/sold transition or a lottery update on a plot that stays open,
// and build the
// corresponding broadcast envelope.
func transitionMessage(n, s *models.PlotState) *models.WSMessage {
	if n.IsOwned != s.IsOwned {
		if !n.IsOwned {
			detail := estimate.OpenPlotDetail(n, n, s)
			return &models.WSMessage{Type: models.WSTypePlotOpen, Data: detail}
		}
		detail := estimate.SoldPlotDetail(n, s)
		return &models.WSMessage{Type: models.WSTypePlotSold, Data: detail}
	}

	if !n.IsOwned {
		obs := models.Observation{
			LottoEntries:    n.LottoEntries,
			LottoPhase:      n.LottoPhase,
			LottoPhaseUntil: n.LottoPhaseUntil,
		}
		detail := estimate.PlotUpdate(&obs, s)
		return &models.WSMessage{Type: models.WSTypePlotUpdate, Data: detail}
	}

	return nil
}

// shouldCreateNewState implements §4.3.1: the distinguishing-attribute
// test deciding whether obs must start a new epoch rather than extend s.
func shouldCreateNewState(obs models.Observation, s *models.PlotState) bool {
	if obs.IsOwned != s.IsOwned {
		return true
	}
	if obs.PurchaseSystem != s.PurchaseSystem {
		return true
	}
	if obs.OwnerName != nil && s.OwnerName != nil && *obs.OwnerName != *s.OwnerName {
		return true
	}
	if obs.LottoPhase != nil && s.LottoPhase != nil && *obs.LottoPhase != *s.LottoPhase {
		return true
	}
	if s.LottoPhase != nil && *s.LottoPhase == models.LottoPhaseResults &&
		obs.LottoPhaseUntil != nil && s.LottoPhaseUntil != nil && *obs.LottoPhaseUntil != *s.LottoPhaseUntil {
		return true
	}
	return false
}

// applyObservation extends s in place from obs. Two update tiers, mirroring
// the historical worker's update routine: null-fill always runs; the
// timestamp-gated tier (price, lotto counters, last_seen advance) only
// runs when obs is actually newer than s.
func applyObservation(s *models.PlotState, obs models.Observation) {
	didUpdateOwner := s.OwnerName == nil && obs.OwnerName != nil
	if didUpdateOwner {
		s.OwnerName = obs.OwnerName
	}
	if s.LottoPhase == nil && obs.LottoPhase != nil {
		s.LottoPhase = obs.LottoPhase
	}

	if obs.Timestamp <= s.LastSeen {
		return
	}

	if obs.Price != nil {
		s.LastSeenPrice = obs.Price
	}
	if obs.LottoEntries != nil {
		current := 0
		if s.LottoEntries != nil {
			current = *s.LottoEntries
		}
		if *obs.LottoEntries > current {
			s.LottoEntries = obs.LottoEntries
		}
	}
	if obs.LottoPhaseUntil != nil {
		s.LottoPhaseUntil = obs.LottoPhaseUntil
	}
	if obs.LottoPhase != nil {
		s.LottoPhase = obs.LottoPhase
	}
	s.PurchaseSystem = obs.PurchaseSystem

	// Advance last_seen only for a placard-grade signal (any lottery
	// field present), a freshly-populated owner name, or once the old
	// lotto_phase_until has elapsed — otherwise a shallow aetheryte-grade
	// sweep would mask a silent ward sweep's timestamp.
	elapsed := s.LottoPhaseUntil == nil || obs.Timestamp > *s.LottoPhaseUntil
	if hasLotteryData(obs) || didUpdateOwner || elapsed {
		s.LastSeen = obs.Timestamp
	} else {
		log.Printf("[reconcile] shallow gate skipped last_seen advance for plot %+v", obs.Location)
	}
}

func hasLotteryData(obs models.Observation) bool {
	return obs.LottoPhase != nil || obs.LottoEntries != nil || obs.LottoPhaseUntil != nil
}

func newStateFromObservation(obs models.Observation) *models.PlotState {
	return &models.PlotState{
		WorldID:         obs.Location.WorldID,
		DistrictID:      obs.Location.DistrictID,
		WardNumber:      obs.Location.WardNumber,
		PlotNumber:      obs.Location.PlotNumber,
		FirstSeen:       obs.Timestamp,
		LastSeen:        obs.Timestamp,
		IsOwned:         obs.IsOwned,
		OwnerName:       obs.OwnerName,
		LastSeenPrice:   obs.Price,
		PurchaseSystem:  obs.PurchaseSystem,
		LottoEntries:    obs.LottoEntries,
		LottoPhase:      obs.LottoPhase,
		LottoPhaseUntil: obs.LottoPhaseUntil,
	}
}
