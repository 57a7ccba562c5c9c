package externalsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/pagination"
)

type EventReader interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

type RegistrationLister interface {
	List(ctx context.Context, f registration.Filter, p registration.Paging, o registration.LoadOptions) ([]registration.Registration, error)
}

// RunGuard serializes runs for the same key across processes.
type RunGuard interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Metrics receives one observation per bucketed outcome.
type Metrics interface {
	ObserveSyncOutcome(provider, outcome string)
}

type OrchestratorConfig struct {
	PageSize int
	Guard    RunGuard
	LockTTL  time.Duration
	Metrics  Metrics
	Logger   *slog.Logger
}

// Orchestrator drives every registered provider through an event's verified
// registrations. Failures are isolated per provider and per user and reported
// through the returned results.
type Orchestrator struct {
	registry      *Registry
	events        EventReader
	registrations RegistrationLister
	cfg           OrchestratorConfig
	log           *slog.Logger
	tracer        trace.Tracer
}

func NewOrchestrator(registry *Registry, events EventReader, registrations RegistrationLister, cfg OrchestratorConfig) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		registry:      registry,
		events:        events,
		registrations: registrations,
		cfg:           cfg,
		log:           log,
		tracer:        otel.Tracer("github.com/losol/eventuras-sub008/internal/externalsync"),
	}
}

func (o *Orchestrator) ProviderNames() []string {
	return o.registry.Names()
}

func (o *Orchestrator) HasProvider(name string) bool {
	_, ok := o.registry.Get(name)
	return ok
}

// SyncEvent syncs the event's verified registrations to every provider, or to
// the provider named exactly providerName when it is not empty.
//
// Only a failure to load the event, a held run lock, or cancellation is
// returned as an error. On cancellation the results built so far are
// returned together with ctx.Err().
func (o *Orchestrator) SyncEvent(ctx context.Context, eventID, providerName string) ([]*Result, error) {
	ctx, span := o.tracer.Start(ctx, "externalsync.SyncEvent", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("sync.provider", providerName),
	))
	defer span.End()

	ev, err := o.events.GetByID(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load event")
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}

	if o.cfg.Guard != nil {
		// A lock backend failure runs unguarded; unique keys still prevent
		// duplicate records.
		unlock, ok, err := o.cfg.Guard.TryLock(ctx, "sync:event:"+eventID, o.cfg.LockTTL)
		switch {
		case err != nil:
			o.log.WarnContext(ctx, "sync.lock_unavailable", "event_id", eventID, "err", err)
		case !ok:
			return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, eventID)
		default:
			defer unlock()
		}
	}

	providers := o.registry.Select(providerName)
	results := make([]*Result, 0, len(providers))
	ready := make([]Provider, 0, len(providers))
	readyResults := make([]*Result, 0, len(providers))

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := NewResult(p.Name())
		results = append(results, res)

		if err := p.SynchronizationCheck(ctx, ev); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			res.AddGenericError(err)
			o.observe(p.Name(), "check_failed")
			o.log.WarnContext(ctx, "externalsync.check_failed",
				"provider", p.Name(),
				"event_id", ev.ID,
				"err", err,
			)
			continue
		}

		ready = append(ready, p)
		readyResults = append(readyResults, res)
	}

	for i, p := range ready {
		if err := o.syncProvider(ctx, ev, p, readyResults[i]); err != nil {
			span.RecordError(err)
			return results, err
		}
	}

	for _, res := range results {
		o.log.InfoContext(ctx, "externalsync.result",
			"provider", res.ProviderName,
			"event_id", ev.ID,
			"created", res.CreatedUserIDs.Len(),
			"existing", res.ExistingUserIDs.Len(),
			"previously_registered", res.PreviouslyRegisteredUserIDs.Len(),
			"new_registered", res.NewRegisteredUserIDs.Len(),
			"total_registered", res.TotalRegisteredUserIDs.Len(),
			"not_synced", res.NotSyncedCount,
			"generic_errors", len(res.GenericErrors),
			"user_errors", len(res.UserExportErrors),
		)
	}

	return results, nil
}

// syncProvider returns an error only when ctx is done.
func (o *Orchestrator) syncProvider(ctx context.Context, ev event.Event, p Provider, res *Result) error {
	ctx, span := o.tracer.Start(ctx, "externalsync.provider", trace.WithAttributes(
		attribute.String("sync.provider", p.Name()),
	))
	defer span.End()

	reader := pagination.NewReader(func(ctx context.Context, offset, limit int) ([]registration.Registration, error) {
		return o.registrations.List(ctx,
			registration.Filter{EventID: ev.ID, VerifiedOnly: true},
			registration.Paging{Offset: offset, Limit: limit},
			registration.LoadOptions{IncludeUser: true},
		)
	}, o.cfg.PageSize)

	for reader.HasMore() {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := reader.ReadNext(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res.AddGenericError(fmt.Errorf("list registrations at offset %d: %w", reader.Offset(), err))
			o.log.ErrorContext(ctx, "externalsync.list_failed",
				"provider", p.Name(),
				"event_id", ev.ID,
				"err", err,
			)
			return nil
		}

		for _, reg := range page {
			if err := o.syncRegistration(ctx, p, reg, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) syncRegistration(ctx context.Context, p Provider, reg registration.Registration, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	acc, err := o.resolveAccount(ctx, p, reg, res)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.AddUserError(reg.UserID, err)
		o.observe(p.Name(), "account_error")
		o.log.ErrorContext(ctx, "externalsync.account_failed",
			"provider", p.Name(),
			"registration_id", reg.ID,
			"user_id", reg.UserID,
			"err", err,
		)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	outcome, err := p.RunSynchronization(ctx, acc, reg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, external.ErrEventNotFound) {
			o.observe(p.Name(), "no_external_event")
			o.log.WarnContext(ctx, "externalsync.no_external_event",
				"provider", p.Name(),
				"event_id", reg.EventID,
				"registration_id", reg.ID,
			)
			return nil
		}
		res.AddUserError(reg.UserID, err)
		o.observe(p.Name(), "sync_error")
		o.log.ErrorContext(ctx, "externalsync.sync_failed",
			"provider", p.Name(),
			"registration_id", reg.ID,
			"user_id", reg.UserID,
			"err", err,
		)
		return nil
	}

	switch outcome {
	case Synced:
		res.NewRegisteredUserIDs.Add(reg.UserID)
		res.TotalRegisteredUserIDs.Add(reg.UserID)
	case AlreadySynced:
		res.PreviouslyRegisteredUserIDs.Add(reg.UserID)
		res.TotalRegisteredUserIDs.Add(reg.UserID)
	default:
		res.NotSyncedCount++
		o.log.DebugContext(ctx, "externalsync.not_synced",
			"provider", p.Name(),
			"registration_id", reg.ID,
			"user_id", reg.UserID,
		)
	}
	o.observe(p.Name(), outcome.String())
	return nil
}

func (o *Orchestrator) resolveAccount(ctx context.Context, p Provider, reg registration.Registration, res *Result) (external.Account, error) {
	existing, err := p.FindExistingAccount(ctx, reg)
	if err != nil {
		return external.Account{}, fmt.Errorf("find existing account: %w", err)
	}
	if existing != nil {
		res.ExistingUserIDs.Add(reg.UserID)
		o.observe(p.Name(), "existing_account")
		return *existing, nil
	}

	if err := ctx.Err(); err != nil {
		return external.Account{}, err
	}

	acc, err := p.CreateAccountForUser(ctx, reg)
	if err != nil {
		return external.Account{}, err
	}
	res.CreatedUserIDs.Add(reg.UserID)
	o.observe(p.Name(), "created_account")
	return acc, nil
}

func (o *Orchestrator) observe(provider, outcome string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveSyncOutcome(provider, outcome)
	}
}
