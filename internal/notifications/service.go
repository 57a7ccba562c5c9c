package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/domain/product"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/pagination"
)

var (
	// ErrInvalidInput marks requests rejected before anything is stored.
	ErrInvalidInput = errors.New("invalid notification request")
	ErrNoRecipients = fmt.Errorf("%w: no recipients", ErrInvalidInput)
)

// ParticipantFilter selects recipients among an event's registrations.
// ProductID alone is enough; the event is inferred from the product.
type ParticipantFilter struct {
	EventID   string
	ProductID string
	// Empty means every status except cancelled.
	Statuses []registration.Status
	Types    []registration.Type
}

// Selector must have exactly one form populated.
type Selector struct {
	Recipients        []string
	EventParticipants *ParticipantFilter
	RegistrationID    string
}

func (s Selector) forms() int {
	n := 0
	if len(s.Recipients) > 0 {
		n++
	}
	if s.EventParticipants != nil {
		n++
	}
	if strings.TrimSpace(s.RegistrationID) != "" {
		n++
	}
	return n
}

type Request struct {
	Kind            notification.Kind
	Subject         string
	Body            string
	OrganizationID  *string
	CreatedByUserID *string
	Selector        Selector
}

type EventReader interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

type ProductReader interface {
	GetByID(ctx context.Context, id string) (product.Product, error)
}

type RegistrationReader interface {
	GetByID(ctx context.Context, id string, o registration.LoadOptions) (registration.Registration, error)
	List(ctx context.Context, f registration.Filter, p registration.Paging, o registration.LoadOptions) ([]registration.Registration, error)
}

type Store interface {
	// Create stores the notification and all recipient rows together.
	Create(ctx context.Context, n notification.Notification, recipients []notification.Recipient) error
	GetByID(ctx context.Context, id string) (notification.Notification, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Delivery hands a stored notification to its transport.
type Delivery interface {
	Deliver(ctx context.Context, n notification.Notification) error
}

// Enqueuer is implemented by deliveries that only record work. Enqueue runs
// inside the transaction that creates the notification.
type Enqueuer interface {
	Enqueue(ctx context.Context, n notification.Notification) error
}

type ServiceConfig struct {
	PageSize int
	Logger   *slog.Logger
}

// Service resolves a recipient selector, stores the notification with its
// recipients and passes it on for delivery.
type Service struct {
	events        EventReader
	products      ProductReader
	registrations RegistrationReader
	store         Store
	tx            TxRunner
	delivery      Delivery
	pageSize      int
	log           *slog.Logger
	validate      *validator.Validate
	tracer        trace.Tracer
}

func NewService(
	events EventReader,
	products ProductReader,
	registrations RegistrationReader,
	store Store,
	tx TxRunner,
	delivery Delivery,
	cfg ServiceConfig,
) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		events:        events,
		products:      products,
		registrations: registrations,
		store:         store,
		tx:            tx,
		delivery:      delivery,
		pageSize:      cfg.PageSize,
		log:           cfg.Logger,
		validate:      validator.New(),
		tracer:        otel.Tracer("github.com/losol/eventuras-sub008/internal/notifications"),
	}
}

type resolved struct {
	eventID    *string
	productID  *string
	recipients []notification.Recipient
}

func (s *Service) CreateAndSend(ctx context.Context, req Request) (notification.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.CreateAndSend", trace.WithAttributes(
		attribute.String("notification.kind", string(req.Kind)),
	))
	defer span.End()

	n, err := s.createAndSend(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (s *Service) createAndSend(ctx context.Context, req Request) (notification.Notification, error) {
	if err := validateContent(req); err != nil {
		return notification.Notification{}, err
	}

	switch req.Selector.forms() {
	case 0:
		return notification.Notification{}, fmt.Errorf("%w: one of recipients, eventParticipants or registrationId is required", ErrInvalidInput)
	case 1:
	default:
		return notification.Notification{}, fmt.Errorf("%w: recipients, eventParticipants and registrationId are mutually exclusive", ErrInvalidInput)
	}

	res, err := s.resolve(ctx, req.Kind, req.Selector)
	if err != nil {
		return notification.Notification{}, err
	}
	if len(res.recipients) == 0 {
		return notification.Notification{}, ErrNoRecipients
	}

	n := notification.New(req.Kind, strings.TrimSpace(req.Subject), req.Body)
	n.OrganizationID = req.OrganizationID
	n.CreatedByUserID = req.CreatedByUserID
	n.EventID = res.eventID
	n.ProductID = res.productID
	n.Stats.Recipients = len(res.recipients)

	for i := range res.recipients {
		res.recipients[i].NotificationID = n.ID
	}

	enq, queued := s.delivery.(Enqueuer)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, n, res.recipients); err != nil {
			return fmt.Errorf("store notification: %w", err)
		}
		if queued {
			return enq.Enqueue(ctx, n)
		}
		return nil
	})
	if err != nil {
		return notification.Notification{}, err
	}

	s.log.InfoContext(ctx, "notification.created",
		"notification_id", n.ID,
		"kind", string(n.Kind),
		"recipients", len(res.recipients),
		"queued", queued,
	)

	if !queued {
		// Per-recipient failures are recorded on the rows; the caller reads them
		// from the returned statistics.
		if err := s.delivery.Deliver(ctx, n); err != nil {
			s.log.WarnContext(ctx, "notification.delivery_incomplete",
				"notification_id", n.ID,
				"err", err,
			)
		}
	}

	stored, err := s.store.GetByID(ctx, n.ID)
	if err != nil {
		s.log.WarnContext(ctx, "notification.reload_failed",
			"notification_id", n.ID,
			"err", err,
		)
		return n, nil
	}
	return stored, nil
}

func validateContent(req Request) error {
	if !req.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, req.Kind)
	}
	if strings.TrimSpace(req.Body) == "" {
		return fmt.Errorf("%w: message body is required", ErrInvalidInput)
	}
	if req.Kind == notification.KindEmail && strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("%w: email subject is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, kind notification.Kind, sel Selector) (resolved, error) {
	switch {
	case len(sel.Recipients) > 0:
		return s.resolveExplicit(kind, sel.Recipients)
	case sel.EventParticipants != nil:
		return s.resolveParticipants(ctx, kind, *sel.EventParticipants)
	default:
		return s.resolveRegistration(ctx, kind, strings.TrimSpace(sel.RegistrationID))
	}
}

func (s *Service) resolveExplicit(kind notification.Kind, addrs []string) (resolved, error) {
	set := newRecipientSet()
	for _, raw := range addrs {
		addr := strings.TrimSpace(raw)
		if err := s.checkAddress(kind, addr); err != nil {
			return resolved{}, err
		}
		set.add(notification.NewRecipient("", "", addr))
	}
	return resolved{recipients: set.items}, nil
}

func (s *Service) checkAddress(kind notification.Kind, addr string) error {
	tag := "required,email"
	if kind == notification.KindSMS {
		tag = "required,e164"
	}
	if err := s.validate.Var(addr, tag); err != nil {
		return fmt.Errorf("%w: invalid recipient %q", ErrInvalidInput, addr)
	}
	return nil
}

func (s *Service) resolveParticipants(ctx context.Context, kind notification.Kind, f ParticipantFilter) (resolved, error) {
	eventID := strings.TrimSpace(f.EventID)
	productID := strings.TrimSpace(f.ProductID)

	var res resolved

	if productID != "" {
		p, err := s.products.GetByID(ctx, productID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return resolved{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			return resolved{}, err
		}
		switch {
		case eventID == "":
			eventID = p.EventID
		case eventID != p.EventID:
			return resolved{}, fmt.Errorf("%w: product %s does not belong to event %s", ErrInvalidInput, productID, eventID)
		}
		res.productID = &productID
	}
	if eventID == "" {
		return resolved{}, fmt.Errorf("%w: eventParticipants requires eventId or productId", ErrInvalidInput)
	}

	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return resolved{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return resolved{}, err
	}
	res.eventID = &eventID

	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = activeStatuses()
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return resolved{}, fmt.Errorf("%w: unknown registration status %q", ErrInvalidInput, st)
		}
	}
	for _, t := range f.Types {
		if !t.IsValid() {
			return resolved{}, fmt.Errorf("%w: unknown registration type %q", ErrInvalidInput, t)
		}
	}

	filter := registration.Filter{
		EventID:   eventID,
		ProductID: productID,
		Statuses:  statuses,
		Types:     f.Types,
	}
	reader := pagination.NewReader(func(ctx context.Context, offset, limit int) ([]registration.Registration, error) {
		return s.registrations.List(ctx, filter, registration.Paging{Offset: offset, Limit: limit}, registration.LoadOptions{IncludeUser: true})
	}, s.pageSize)

	set := newRecipientSet()
	for reader.HasMore() {
		page, err := reader.ReadNext(ctx)
		if err != nil {
			if errors.Is(err, pagination.ErrExhausted) {
				break
			}
			return resolved{}, fmt.Errorf("list participants: %w", err)
		}
		for _, reg := range page {
			if rc, ok := s.recipientFor(ctx, kind, reg); ok {
				set.add(rc)
			}
		}
	}

	res.recipients = set.items
	return res, nil
}

func (s *Service) resolveRegistration(ctx context.Context, kind notification.Kind, id string) (resolved, error) {
	reg, err := s.registrations.GetByID(ctx, id, registration.LoadOptions{IncludeUser: true})
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return resolved{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return resolved{}, err
	}

	res := resolved{eventID: &reg.EventID}
	if rc, ok := s.recipientFor(ctx, kind, reg); ok {
		res.recipients = []notification.Recipient{rc}
	}
	return res, nil
}

// recipientFor picks the address for kind from the registration's user.
func (s *Service) recipientFor(ctx context.Context, kind notification.Kind, reg registration.Registration) (notification.Recipient, bool) {
	if reg.User == nil {
		s.log.WarnContext(ctx, "notification.recipient_skipped", "registration_id", reg.ID, "reason", "user not loaded")
		return notification.Recipient{}, false
	}

	addr := strings.TrimSpace(reg.User.Email)
	if kind == notification.KindSMS {
		addr = strings.TrimSpace(reg.User.PhoneNumber)
	}
	if addr == "" {
		s.log.InfoContext(ctx, "notification.recipient_skipped",
			"registration_id", reg.ID,
			"user_id", reg.UserID,
			"reason", "no address",
		)
		return notification.Recipient{}, false
	}

	rc := notification.NewRecipient("", reg.User.Name, addr)
	userID, regID := reg.UserID, reg.ID
	rc.UserID = &userID
	rc.RegistrationID = &regID
	return rc, true
}

func activeStatuses() []registration.Status {
	return []registration.Status{
		registration.StatusDraft,
		registration.StatusVerified,
		registration.StatusNotAttended,
		registration.StatusAttended,
		registration.StatusFinished,
		registration.StatusWaitingList,
	}
}

// recipientSet keeps the first recipient per address, ignoring case.
type recipientSet struct {
	seen  map[string]struct{}
	items []notification.Recipient
}

func newRecipientSet() *recipientSet {
	return &recipientSet{seen: make(map[string]struct{})}
}

func (s *recipientSet) add(rc notification.Recipient) {
	key := strings.ToLower(rc.Address)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, rc)
}
