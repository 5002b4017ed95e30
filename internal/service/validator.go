// Package service holds the locator validation engine: request
// normalization, identity checks, idempotent replay and the atomic
// consumption walk over a locator's ticket slots.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/model"
	"github.com/iliyamo/locator-validation/internal/queue"
	"github.com/iliyamo/locator-validation/internal/repository"
	"github.com/iliyamo/locator-validation/internal/source"
)

// EndpointValidateLocator scopes idempotency keys of this operation.
const EndpointValidateLocator = "validate-locator"

const publishTimeout = 5 * time.Second

// RequestContext carries per-call metadata that is not part of the
// fingerprinted payload.
type RequestContext struct {
	IdempotencyKey string
	Actor          model.Actor
}

// EventPublisher receives an event for every freshly computed outcome.
// Replays never publish.
type EventPublisher interface {
	PublishValidation(ctx context.Context, ev queue.ValidationEvent) error
}

// txBeginner is the part of *sql.DB the engine needs.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// LocatorValidator decides VALID / INVALID / DUPLICATE for a locator and
// document pair.  All ledger writes of one attempt (consumption claim,
// audit entry, idempotency record) commit in a single transaction.
type LocatorValidator struct {
	db           txBeginner
	txOpts       *sql.TxOptions
	source       source.CandidateSource
	consumptions *repository.ConsumptionRepo
	idempotency  *repository.IdempotencyRepo
	validations  *repository.ValidationRepo
	events       EventPublisher
	log          *logrus.Logger
	now          func() time.Time
	inflight     sync.WaitGroup
}

func NewLocatorValidator(db *sql.DB, d database.Dialect, src source.CandidateSource, consumptions *repository.ConsumptionRepo,
	idem *repository.IdempotencyRepo, validations *repository.ValidationRepo, logger *logrus.Logger) *LocatorValidator {
	if db == nil || src == nil || consumptions == nil || idem == nil || validations == nil || logger == nil {
		panic("nil dependency passed to NewLocatorValidator")
	}
	return &LocatorValidator{
		db:           db,
		txOpts:       d.TxOptions(),
		source:       src,
		consumptions: consumptions,
		idempotency:  idem,
		validations:  validations,
		log:          logger,
		now:          time.Now,
	}
}

// WithEvents attaches a publisher.  A nil publisher disables events.
func (v *LocatorValidator) WithEvents(p EventPublisher) *LocatorValidator {
	v.events = p
	return v
}

// outcome is the decision of one attempt before it is rendered.
type outcome struct {
	result      string
	reason      string
	claimed     *model.TicketCandidate
	remaining   *int
	duplicateAt *time.Time
}

// ValidateLocator runs one validation attempt.  With an idempotency key,
// a repeat of the same payload returns the stored response without side
// effects and a different payload fails with ErrIdempotencyConflict.
// Malformed input fails with ErrInvalidRequest.  Any other error means
// the attempt was rolled back and nothing was recorded.
func (v *LocatorValidator) ValidateLocator(ctx context.Context, in LocatorInput, rc RequestContext) (*model.ValidateLocatorResponse, error) {
	q, err := NormalizeInput(in)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(q)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	key := strings.TrimSpace(rc.IdempotencyKey)

	resp, ev, err := v.execute(ctx, q, fp, key, rc.Actor)
	if err != nil && key != "" && database.IsRetryable(err) {
		// a concurrent holder of the same key may have committed meanwhile
		if replayed, rerr := v.replay(ctx, key, fp); rerr == nil || errors.Is(rerr, ErrIdempotencyConflict) {
			resp, ev, err = replayed, nil, rerr
		}
	}
	if err != nil {
		if !errors.Is(err, ErrIdempotencyConflict) {
			v.log.WithFields(logrus.Fields{
				"module":     "service",
				"funcName":   "ValidateLocator",
				"locator":    q.Locator,
				"service_id": q.ServiceID,
				"idem_key":   key,
			}).WithError(err).Error("validation aborted")
		}
		return nil, err
	}
	if ev != nil {
		v.publish(*ev)
	}
	return resp, nil
}

func (v *LocatorValidator) execute(ctx context.Context, q source.Query, fp, key string, actor model.Actor) (*model.ValidateLocatorResponse, *queue.ValidationEvent, error) {
	tx, err := v.db.BeginTx(ctx, v.txOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback()
		}
	}()

	if key != "" {
		rec, err := v.idempotency.GetForUpdateTx(ctx, tx, key, EndpointValidateLocator)
		switch {
		case err == nil:
			resp, err := storedResponse(rec, fp)
			return resp, nil, err
		case !errors.Is(err, repository.ErrNotFound):
			return nil, nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	now := v.now().UTC().Truncate(time.Millisecond)
	var o outcome
	if IsValidDocument(q.DNI) {
		if o, err = v.consume(ctx, tx, q, actor, now); err != nil {
			return nil, nil, err
		}
	} else {
		// a malformed document never reaches the candidate source
		o = outcome{result: model.ResultInvalid, reason: model.ReasonDNIMismatch}
	}

	rec := auditRecord(q, o, actor, now)
	if err := v.validations.CreateTx(ctx, tx, rec); err != nil {
		return nil, nil, fmt.Errorf("audit: %w", err)
	}
	resp := o.response(now)

	if key != "" {
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, nil, fmt.Errorf("encode response: %w", err)
		}
		stored, err := v.idempotency.PutIfAbsentTx(ctx, tx, model.IdempotencyRecord{
			Key:         key,
			Endpoint:    EndpointValidateLocator,
			Fingerprint: fp,
			Response:    body,
			CreatedAt:   now,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("idempotency store: %w", err)
		}
		if !stored {
			// lost the race for this key: undo our claim and answer like the winner
			finished = true
			if err := tx.Rollback(); err != nil {
				return nil, nil, fmt.Errorf("rollback: %w", err)
			}
			resp, err := v.replay(ctx, key, fp)
			return resp, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		finished = true
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	finished = true
	ev := o.event(q, actor, now)
	return resp, &ev, nil
}

// consume fetches the candidates and claims the first eligible free one.
func (v *LocatorValidator) consume(ctx context.Context, tx *sql.Tx, q source.Query, actor model.Actor, now time.Time) (outcome, error) {
	all, err := v.listCandidates(ctx, tx, q)
	if err != nil {
		return outcome{}, fmt.Errorf("candidates: %w", err)
	}
	if len(all) == 0 {
		return outcome{result: model.ResultInvalid, reason: model.ReasonNotFound}, nil
	}
	eligible := EligibleCandidates(OrderCandidates(all), q.DNI)
	if len(eligible) == 0 {
		return outcome{result: model.ResultInvalid, reason: model.ReasonDNIMismatch}, nil
	}

	keys := make([]string, len(eligible))
	for i, c := range eligible {
		keys[i] = c.TicketKey
	}
	consumed, err := v.consumptions.ListConsumedKeysTx(ctx, tx, keys)
	if err != nil {
		return outcome{}, fmt.Errorf("consumed keys: %w", err)
	}

	var claimed *model.TicketCandidate
	for i := range eligible {
		c := eligible[i]
		if _, taken := consumed[c.TicketKey]; taken {
			continue
		}
		svc := q.ServiceID
		if svc == nil {
			svc = c.ServiceID
		}
		won, err := v.consumptions.TryClaimTx(ctx, tx, model.Consumption{
			TicketKey: c.TicketKey,
			Locator:   q.Locator,
			ServiceID: svc,
			Actor:     actor,
			DNI:       q.DNI,
			CreatedAt: now,
		})
		if err != nil {
			return outcome{}, fmt.Errorf("claim %s: %w", c.TicketKey, err)
		}
		if won {
			claimed = &c
			break
		}
	}

	if claimed == nil {
		latest, err := v.consumptions.LatestConsumptionTx(ctx, tx, keys)
		if err != nil {
			return outcome{}, fmt.Errorf("latest consumption: %w", err)
		}
		zero := 0
		return outcome{result: model.ResultDuplicate, reason: model.ReasonNoRemaining, remaining: &zero, duplicateAt: latest}, nil
	}

	after, err := v.consumptions.ListConsumedKeysTx(ctx, tx, keys)
	if err != nil {
		return outcome{}, fmt.Errorf("consumed keys: %w", err)
	}
	remaining := len(keys) - len(after)
	if remaining < 0 {
		remaining = 0
	}
	return outcome{result: model.ResultValid, claimed: claimed, remaining: &remaining}, nil
}

func (v *LocatorValidator) listCandidates(ctx context.Context, tx *sql.Tx, q source.Query) ([]model.TicketCandidate, error) {
	if txs, ok := v.source.(source.TxCandidateSource); ok {
		return txs.ListCandidatesTx(ctx, tx, q)
	}
	return v.source.ListCandidates(ctx, q)
}

// replay answers from the idempotency store outside any transaction.
func (v *LocatorValidator) replay(ctx context.Context, key, fp string) (*model.ValidateLocatorResponse, error) {
	rec, err := v.idempotency.Get(ctx, key, EndpointValidateLocator)
	if err != nil {
		return nil, fmt.Errorf("idempotency replay: %w", err)
	}
	return storedResponse(rec, fp)
}

func storedResponse(rec *model.IdempotencyRecord, fp string) (*model.ValidateLocatorResponse, error) {
	if rec.Fingerprint != fp {
		return nil, ErrIdempotencyConflict
	}
	var resp model.ValidateLocatorResponse
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

func (v *LocatorValidator) publish(ev queue.ValidationEvent) {
	if v.events == nil {
		return
	}
	v.inflight.Add(1)
	go func() {
		defer v.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := v.events.PublishValidation(ctx, ev); err != nil {
			v.log.WithFields(logrus.Fields{
				"module":   "service",
				"funcName": "publish",
				"event_id": ev.EventID,
			}).WithError(err).Warn("validation event not published")
		}
	}()
}

// Drain waits for events still being published, or until ctx is done.
func (v *LocatorValidator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o outcome) response(now time.Time) *model.ValidateLocatorResponse {
	ts := now.Format(model.TimestampLayout)
	resp := &model.ValidateLocatorResponse{
		Result:     o.result,
		Reason:     o.reason,
		Timestamps: model.Timestamps{CreatedAt: ts, UpdatedAt: ts},
	}
	if o.remaining != nil {
		n := *o.remaining
		resp.RemainingAfter = &n
	}
	if o.claimed != nil {
		n := *o.remaining
		resp.Ticket = &model.TicketInfo{
			TicketID:       o.claimed.TicketKey,
			Ref:            o.claimed.Reference,
			Sequence:       o.claimed.Sequence,
			RemainingAfter: &n,
		}
	}
	if o.duplicateAt != nil {
		resp.DuplicateRecordedAt = o.duplicateAt.UTC().Format(model.TimestampLayout)
	}
	return resp
}

func (o outcome) event(q source.Query, actor model.Actor, now time.Time) queue.ValidationEvent {
	ev := queue.ValidationEvent{
		EventID:     queue.NewEventID(),
		Result:      o.result,
		Reason:      o.reason,
		Locator:     q.Locator,
		ServiceID:   q.ServiceID,
		Remaining:   o.remaining,
		UserID:      actor.UserID,
		Username:    actor.Username,
		ValidatedAt: now.Format(model.TimestampLayout),
	}
	if o.claimed != nil {
		ev.TicketKey = o.claimed.TicketKey
		ev.Reference = o.claimed.Reference
	}
	return ev
}

func auditRecord(q source.Query, o outcome, actor model.Actor, now time.Time) *model.ValidationRecord {
	rec := &model.ValidationRecord{
		Locator:   q.Locator,
		ServiceID: q.ServiceID,
		DNI:       q.DNI,
		Result:    o.result,
		UserID:    optional(actor.UserID),
		Username:  optional(actor.Username),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec.Reason = optional(o.reason)
	if o.claimed != nil {
		rec.TicketKey = optional(o.claimed.TicketKey)
		rec.Reference = optional(o.claimed.Reference)
	}
	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
