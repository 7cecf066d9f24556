package booking

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRejectionReason is sent to the visitor when an administrator gives no reason.
const DefaultRejectionReason = "Unfortunately, the requested visit time is no longer available."

// Notifier delivers booking emails. Implementations may fail; the service logs failures
// and never undoes a state change because of them.
type Notifier interface {
	SendConfirmation(ctx context.Context, b *Booking) error
	SendApproval(ctx context.Context, b *Booking) error
	SendRejection(ctx context.Context, b *Booking, reason string) error
}

type CreateRequest struct {
	Name          string
	Surname       string
	Email         string
	VisitDateTime time.Time
	PartySize     int
	GuideRequired bool
	AgeGroup      AgeGroup
}

type UpdateRequest struct {
	Name          *string
	Surname       *string
	Email         *string
	VisitDateTime *time.Time
	PartySize     *int
	GuideRequired *bool
	AgeGroup      *AgeGroup
}

type Service interface {
	// Lifecycle
	Create(ctx context.Context, req CreateRequest) (*Booking, error)
	Confirm(ctx context.Context, token string) (*Booking, error)
	Approve(ctx context.Context, id string) (*Booking, error)
	Reject(ctx context.Context, id string, reason string) (*Booking, error)

	// Administration
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Booking, error)
	Delete(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int, error)

	// Availability
	CountConfirmed(ctx context.Context, day time.Time, startHour, endHour int) (int, error)
	SlotsForDay(ctx context.Context, day time.Time) ([]SlotCount, error)
	DensityForMonth(ctx context.Context, year int, month time.Month) (map[string]DayOccupancy, error)

	// Sweep deletes every booking visiting before now minus the retention window.
	Sweep(ctx context.Context, now time.Time) (int64, error)

	Rules() Rules
}

// Option customizes a service.
type Option func(*service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithTokenGenerator replaces the confirmation token source.
func WithTokenGenerator(gen func() string) Option {
	return func(s *service) { s.newToken = gen }
}

type service struct {
	repo     Repository
	notifier Notifier
	rules    Rules
	log      *zap.Logger

	now      func() time.Time
	newToken func() string
}

func NewService(repo Repository, notifier Notifier, rules Rules, log *zap.Logger, opts ...Option) Service {
	if log == nil {
		log = zap.NewNop()
	}
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	s := &service{
		repo:     repo,
		notifier: notifier,
		rules:    rules,
		log:      log.Named("booking"),
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Rules() Rules {
	return s.rules
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	b := &Booking{
		Name:          strings.TrimSpace(req.Name),
		Surname:       strings.TrimSpace(req.Surname),
		Email:         normalizeEmail(req.Email),
		VisitDateTime: req.VisitDateTime,
		PartySize:     req.PartySize,
		GuideRequired: req.GuideRequired,
		AgeGroup:      req.AgeGroup,
	}
	if err := s.validate(b); err != nil {
		return nil, err
	}

	token := s.newToken()
	b.Status = StatusPendingConfirmation
	b.ConfirmationToken = &token

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.Time("visit", b.VisitDateTime),
		zap.Int("party_size", b.PartySize),
	)

	// The booking is recorded; a failed email must not change that.
	if err := s.notifier.SendConfirmation(ctx, b); err != nil {
		s.log.Warn("confirmation email not dispatched", zap.String("booking_id", b.ID), zap.Error(err))
	}

	return b, nil
}

func (s *service) Confirm(ctx context.Context, token string) (*Booking, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	b, err := s.repo.ConfirmByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	s.log.Info("booking confirmed", zap.String("booking_id", b.ID))
	if err := s.notifier.SendApproval(ctx, b); err != nil {
		s.log.Warn("approval email not dispatched", zap.String("booking_id", b.ID), zap.Error(err))
	}
	return b, nil
}

func (s *service) Approve(ctx context.Context, id string) (*Booking, error) {
	b, err := s.repo.Transition(ctx, id, []Status{StatusPendingConfirmation}, StatusConfirmed)
	if err != nil {
		return nil, err
	}

	s.log.Info("booking approved", zap.String("booking_id", b.ID))
	if err := s.notifier.SendApproval(ctx, b); err != nil {
		s.log.Warn("approval email not dispatched", zap.String("booking_id", b.ID), zap.Error(err))
	}
	return b, nil
}

func (s *service) Reject(ctx context.Context, id string, reason string) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}

	b, err := s.repo.Transition(ctx, id, []Status{StatusPendingConfirmation, StatusConfirmed}, StatusRejected)
	if err != nil {
		return nil, err
	}

	s.log.Info("booking rejected", zap.String("booking_id", b.ID), zap.String("reason", reason))
	if err := s.notifier.SendRejection(ctx, b, reason); err != nil {
		s.log.Warn("rejection email not dispatched", zap.String("booking_id", b.ID), zap.Error(err))
	}
	return b, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Surname != nil {
		b.Surname = strings.TrimSpace(*req.Surname)
	}
	if req.Email != nil {
		b.Email = normalizeEmail(*req.Email)
	}
	if req.VisitDateTime != nil {
		b.VisitDateTime = *req.VisitDateTime
	}
	if req.PartySize != nil {
		b.PartySize = *req.PartySize
	}
	if req.GuideRequired != nil {
		b.GuideRequired = *req.GuideRequired
	}
	if req.AgeGroup != nil {
		b.AgeGroup = *req.AgeGroup
	}

	// Keeping a visit time that already passed is allowed; moving a booking into the past is not.
	if err := s.validateFields(b, req.VisitDateTime != nil); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *service) CountPending(ctx context.Context) (int, error) {
	return s.repo.CountByStatus(ctx, StatusPendingConfirmation)
}

func (s *service) CountConfirmed(ctx context.Context, day time.Time, startHour, endHour int) (int, error) {
	if startHour < 0 || endHour > 23 || startHour > endHour {
		return 0, ErrInvalidHourRange
	}
	bookings, err := s.confirmedOn(ctx, day)
	if err != nil {
		return 0, err
	}
	return CountConfirmed(bookings, day, startHour, endHour, s.rules.Location), nil
}

func (s *service) SlotsForDay(ctx context.Context, day time.Time) ([]SlotCount, error) {
	bookings, err := s.confirmedOn(ctx, day)
	if err != nil {
		return nil, err
	}
	return SlotsForDay(bookings, day, s.rules), nil
}

func (s *service) DensityForMonth(ctx context.Context, year int, month time.Month) (map[string]DayOccupancy, error) {
	if year < 1 || year > 9999 || month < time.January || month > time.December {
		return nil, ErrInvalidDate
	}

	from, to := monthBounds(year, month, s.rules.Location)
	confirmed := StatusConfirmed
	bookings, err := s.repo.ListByVisitRange(ctx, from, to, &confirmed)
	if err != nil {
		return nil, err
	}
	return Density(bookings, year, month, s.rules), nil
}

func (s *service) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.rules.Retention)
	n, err := s.repo.DeleteVisitedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("bookings swept", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// confirmedOn loads the confirmed bookings of the day's calendar date.
func (s *service) confirmedOn(ctx context.Context, day time.Time) ([]*Booking, error) {
	from, to := dayBounds(day, s.rules.Location)
	confirmed := StatusConfirmed
	return s.repo.ListByVisitRange(ctx, from, to, &confirmed)
}

func (s *service) validate(b *Booking) error {
	return s.validateFields(b, true)
}

// validateFields collects every field problem at once so clients can show them together.
func (s *service) validateFields(b *Booking, checkVisit bool) error {
	fields := map[string]string{}

	if b.Name == "" {
		fields["name"] = "is required"
	}
	if b.Surname == "" {
		fields["surname"] = "is required"
	}
	if b.Email == "" {
		fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(b.Email); err != nil || addr.Address != b.Email {
		fields["email"] = "is not a valid email address"
	}
	if b.PartySize < 1 {
		fields["party_size"] = "must be at least 1"
	}
	if !b.AgeGroup.Valid() {
		fields["age_group"] = "is not a known age group"
	}

	if b.VisitDateTime.IsZero() {
		fields["visit_date_time"] = "is required"
	} else if checkVisit {
		visit := b.VisitDateTime.In(s.rules.Location)
		switch {
		case visit.Before(s.now()):
			fields["visit_date_time"] = "must be in the future"
		case visit.Hour() < s.rules.OpeningHour || visit.Hour() >= s.rules.ClosingHour:
			fields["visit_date_time"] = "must be within opening hours " +
				SlotLabel(s.rules.OpeningHour, s.rules.ClosingHour)
		}
	}

	if len(fields) > 0 {
		return ErrValidation.WithFields(fields)
	}
	return nil
}

// normalizeEmail trims spaces and lowercases the email.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
