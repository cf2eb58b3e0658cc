package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contactlink/internal/contact/events"
	"contactlink/internal/contact/metrics"
	"contactlink/internal/contact/models"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	"contactlink/pkg/requestcontext"
)

// Store is the contact collection the resolver reads and mutates.
// Result slices are ordered by (CreatedAt, ID) and exclude soft-deleted contacts.
type Store interface {
	// FindByIdentifier returns contacts whose email equals email or whose phone
	// equals phone. Nil or empty identifiers never match.
	FindByIdentifier(ctx context.Context, email, phone *string) ([]*models.Contact, error)
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	// FindAllLinkedTo returns contacts whose id is in ids or whose linkedId is in ids.
	FindAllLinkedTo(ctx context.Context, ids []int64) ([]*models.Contact, error)
	// Insert assigns c.ID, c.CreatedAt and c.UpdatedAt and returns the id.
	Insert(ctx context.Context, c *models.Contact) (int64, error)
	// Update applies u to the contact with id, or returns sentinel.ErrNotFound.
	Update(ctx context.Context, id int64, u models.LinkUpdate) error
}

// EventPublisher receives link events after a resolution commits.
type EventPublisher interface {
	Publish(ctx context.Context, evs ...events.Event) error
}

// maxLockAttempts bounds lock-set convergence when clusters keep growing
// under concurrent merges.
const maxLockAttempts = 16

var tracer = otel.Tracer("contactlink/internal/contact/service")

// Service resolves partial identifier pairs into consolidated identities.
// Each resolution runs inside one ClusterTx: at most one Insert and any number
// of Updates, all under locks covering the cluster it read.
type Service struct {
	store     Store
	tx        ClusterTx
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New constructs a Service. store is used for lock-free pre-reads; tx supplies
// the store used inside transactions. A nil tx serializes globally.
func New(store Store, tx ClusterTx, opts ...Option) *Service {
	if tx == nil {
		tx = NewGlobalTx(store)
	}
	s := &Service{store: store, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolution is what one Identify transaction did.
type resolution struct {
	identity *models.Identity
	created  *models.Contact
	demoted  []int64
	relinked []int64
}

func (r *resolution) outcome() string {
	switch {
	case r.created != nil && r.created.IsPrimary():
		return metrics.OutcomeNewIdentity
	case len(r.demoted) > 0:
		return metrics.OutcomeMerged
	case r.created != nil:
		return metrics.OutcomeSecondaryCreated
	default:
		return metrics.OutcomeUnchanged
	}
}

// Identify links the request's facts into their cluster and returns the
// consolidated identity.
func (s *Service) Identify(ctx context.Context, req models.IdentifyRequest) (*models.Identity, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "contact.Identify")
	defer span.End()

	req.Normalize()

	keys, err := s.preReadKeys(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	var res *resolution
	err = s.runConverging(ctx, keys, func(ctx context.Context, store Store, held KeySet) ([]string, error) {
		r, missing, err := s.resolve(ctx, store, req, held)
		if err != nil || len(missing) > 0 {
			return missing, err
		}
		res = r
		return nil, nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	outcome := res.outcome()
	span.SetAttributes(
		attribute.Int64("contact.primary_id", res.identity.PrimaryContactID),
		attribute.String("contact.outcome", outcome),
	)
	if s.metrics != nil {
		s.metrics.RecordOutcome(outcome)
		s.metrics.AddDemoted(len(res.demoted))
		s.metrics.AddRelinked(len(res.relinked))
		s.metrics.ObserveIdentify(start)
	}
	s.logResolution(ctx, res, outcome)
	s.publish(ctx, res)

	return res.identity, nil
}

// View returns the consolidated identity of the cluster containing id without
// mutating anything.
func (s *Service) View(ctx context.Context, id int64) (*models.Identity, error) {
	ctx, span := tracer.Start(ctx, "contact.View")
	defer span.End()
	span.SetAttributes(attribute.Int64("contact.id", id))

	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, translateStoreError(err, "failed to load contact"))
	}

	var identity *models.Identity
	keys := []string{IDKey(c.ID), IDKey(primaryOf(c))}
	err = s.runConverging(ctx, keys, func(ctx context.Context, store Store, held KeySet) ([]string, error) {
		// A merge may have demoted the primary since the unlocked read.
		c, err := store.FindByID(ctx, id)
		if err != nil {
			return nil, translateStoreError(err, "failed to load contact")
		}
		primaryID := primaryOf(c)
		if key := IDKey(primaryID); !held.Covers(key) {
			return []string{key}, nil
		}

		cluster, err := store.FindAllLinkedTo(ctx, []int64{primaryID})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cluster")
		}
		if missing := uncoveredKeys(cluster, held); len(missing) > 0 {
			return missing, nil
		}
		idx := slices.IndexFunc(cluster, func(m *models.Contact) bool { return m.ID == primaryID })
		if idx < 0 || !cluster[idx].IsPrimary() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact is not linked to a primary")
		}
		identity = assemble(cluster[idx], cluster)
		return nil, nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return identity, nil
}

// primaryOf is the id of the primary c belongs to.
func primaryOf(c *models.Contact) int64 {
	if !c.IsPrimary() && c.LinkedID != nil {
		return *c.LinkedID
	}
	return c.ID
}

// preReadKeys reads the current cluster without locks so the first
// transaction usually holds every key it needs.
func (s *Service) preReadKeys(ctx context.Context, req models.IdentifyRequest) ([]string, error) {
	keys := requestKeys(req)
	seeds, err := s.store.FindByIdentifier(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to match contacts")
	}
	if len(seeds) == 0 {
		return keys, nil
	}
	cluster, err := s.store.FindAllLinkedTo(ctx, expansionIDs(seeds))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expand cluster")
	}
	return append(keys, clusterKeys(cluster)...), nil
}

// runConverging runs fn in a cluster transaction. When fn reports lock keys it
// needed but did not hold, the transaction is abandoned before any mutation and
// rerun with the union. Errors from fn are returned as-is.
func (s *Service) runConverging(ctx context.Context, keys []string, fn func(ctx context.Context, store Store, held KeySet) ([]string, error)) error {
	keys = SortedKeys(keys)
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		var missing []string
		err := s.tx.RunInTx(ctx, keys, func(ctx context.Context, store Store, held KeySet) error {
			var err error
			missing, err = fn(ctx, store, held)
			if err == nil && len(missing) > 0 {
				return errLockSetStale
			}
			return err
		})
		if !errors.Is(err, errLockSetStale) {
			return err
		}
		if s.metrics != nil {
			s.metrics.IncrementLockRetries()
		}
		keys = SortedKeys(append(keys, missing...))
	}
	return dErrors.New(dErrors.CodeConflict, "cluster kept changing during resolution")
}

// resolve runs the resolution steps against a locked store. It returns the id
// keys it needed but did not hold before mutating anything.
func (s *Service) resolve(ctx context.Context, store Store, req models.IdentifyRequest, held KeySet) (*resolution, []string, error) {
	seeds, err := store.FindByIdentifier(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to match contacts")
	}

	if len(seeds) == 0 {
		primary := models.NewPrimary(req.Email, req.PhoneNumber)
		if _, err := store.Insert(ctx, primary); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create primary contact")
		}
		return &resolution{
			identity: assemble(primary, []*models.Contact{primary}),
			created:  primary,
		}, nil, nil
	}

	cluster, err := store.FindAllLinkedTo(ctx, expansionIDs(seeds))
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expand cluster")
	}
	if missing := uncoveredKeys(cluster, held); len(missing) > 0 {
		return nil, missing, nil
	}

	res := &resolution{}
	primary, err := s.normalize(ctx, store, cluster, res)
	if err != nil {
		return nil, nil, err
	}

	if contributesNewFact(cluster, req) {
		secondary := models.NewSecondary(req.Email, req.PhoneNumber, primary.ID)
		if _, err := store.Insert(ctx, secondary); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create secondary contact")
		}
		cluster = append(cluster, secondary)
		res.created = secondary
	}

	res.identity = assemble(primary, cluster)
	return res, nil, nil
}

// normalize leaves the oldest primary in place and points every other member
// at it. Updates are applied one by one; a failure leaves the cluster partially
// normalized and is reported, never retried.
func (s *Service) normalize(ctx context.Context, store Store, cluster []*models.Contact, res *resolution) (*models.Contact, error) {
	ps := primaries(cluster)
	if len(ps) == 0 {
		ids := make([]int64, 0, len(cluster))
		for _, c := range cluster {
			ids = append(ids, c.ID)
		}
		s.logger.ErrorContext(ctx, "cluster has no primary contact",
			requestcontext.LogAttr(ctx),
			"contact_ids", ids,
		)
		return nil, dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeInvariantViolation, "cluster has no primary contact")
	}
	survivor := ps[0]
	now := requestcontext.Now(ctx)

	for _, c := range cluster {
		if !needsRelink(c, survivor.ID) {
			continue
		}
		wasPrimary := c.IsPrimary()
		update := c.Demotion(survivor.ID, now)
		if err := store.Update(ctx, c.ID, update); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to link contact %d to primary %d", c.ID, survivor.ID))
		}
		c.Apply(update)
		if wasPrimary {
			res.demoted = append(res.demoted, c.ID)
		} else {
			res.relinked = append(res.relinked, c.ID)
		}
	}
	return survivor, nil
}

func (s *Service) logResolution(ctx context.Context, res *resolution, outcome string) {
	if outcome == metrics.OutcomeUnchanged {
		return
	}
	attrs := []any{
		requestcontext.LogAttr(ctx),
		"outcome", outcome,
		"primary_contact_id", res.identity.PrimaryContactID,
	}
	if res.created != nil {
		attrs = append(attrs, "created_contact_id", res.created.ID)
	}
	if len(res.demoted) > 0 {
		attrs = append(attrs, "demoted_contact_ids", res.demoted)
	}
	if len(res.relinked) > 0 {
		attrs = append(attrs, "relinked_contact_ids", res.relinked)
	}
	s.logger.InfoContext(ctx, "contact cluster updated", attrs...)
}

// publish ships link events after commit. Delivery failures are logged and
// counted but never fail the resolution.
func (s *Service) publish(ctx context.Context, res *resolution) {
	if s.publisher == nil {
		return
	}
	evs := res.events(requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.WarnContext(ctx, "failed to publish contact link events",
			requestcontext.LogAttr(ctx),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementEventsDropped()
		}
	}
}

func (r *resolution) events(requestID string, now time.Time) []events.Event {
	primaryID := r.identity.PrimaryContactID
	var evs []events.Event
	add := func(t events.Type, contactID int64) {
		evs = append(evs, events.Event{
			ID:               uuid.NewString(),
			Type:             t,
			ContactID:        contactID,
			PrimaryContactID: primaryID,
			RequestID:        requestID,
			OccurredAt:       now,
		})
	}
	for _, id := range r.demoted {
		add(events.TypeContactDemoted, id)
	}
	for _, id := range r.relinked {
		add(events.TypeContactRelinked, id)
	}
	if r.created != nil {
		if r.created.IsPrimary() {
			add(events.TypeContactCreated, r.created.ID)
		} else {
			add(events.TypeContactLinked, r.created.ID)
		}
	}
	return evs
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.metrics != nil {
		s.metrics.RecordOutcome(metrics.OutcomeFailed)
	}
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		s.logger.ErrorContext(ctx, "contact resolution failed",
			requestcontext.LogAttr(ctx),
			"error", err,
		)
	}
	return err
}

// translateStoreError maps store sentinels onto domain codes, keeping the cause.
func translateStoreError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "contact not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
