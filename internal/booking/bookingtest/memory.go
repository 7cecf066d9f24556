// Package bookingtest provides in-memory doubles of the booking store and notifier
// for tests of the booking service, its HTTP handlers and the sweeper.
package bookingtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/apperror"
)

// Repository is a goroutine-safe in-memory booking.Repository.
// Set Err to make every call fail with it.
type Repository struct {
	mu       sync.Mutex
	bookings map[string]*booking.Booking
	Err      error
	Now      func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		bookings: make(map[string]*booking.Booking),
		Now:      time.Now,
	}
}

// Seed stores b as is, assigning an id when missing, and returns the stored copy.
func (r *Repository) Seed(b booking.Booking) *booking.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.Now()
		b.UpdatedAt = b.CreatedAt
	}
	r.bookings[b.ID] = clone(&b)
	return clone(&b)
}

// Len returns the number of stored bookings.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}

func (r *Repository) Create(ctx context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if b.PartySize < 1 {
		return apperror.Integrity(errors.New("party_size check violated"), booking.ErrConflict.Message)
	}
	if b.ConfirmationToken != nil {
		for _, existing := range r.bookings {
			if existing.ConfirmationToken != nil && *existing.ConfirmationToken == *b.ConfirmationToken {
				return apperror.Integrity(errors.New("confirmation_token unique violated"), booking.ErrConflict.Message)
			}
		}
	}

	b.ID = uuid.NewString()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = clone(b)
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return clone(b), nil
}

func (r *Repository) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, 0, r.Err
	}

	var matched []*booking.Booking
	for _, b := range r.bookings {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.VisitFrom != nil && b.VisitDateTime.Before(*filter.VisitFrom) {
			continue
		}
		if filter.VisitTo != nil && !b.VisitDateTime.Before(*filter.VisitTo) {
			continue
		}
		matched = append(matched, clone(b))
	}
	sortByVisit(matched)
	if filter.SortOrder == "DESC" {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	total := len(matched)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := min(start+size, total)
	return matched[start:end], total, nil
}

func (r *Repository) ListByVisitRange(ctx context.Context, from, to time.Time, status *booking.Status) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var out []*booking.Booking
	for _, b := range r.bookings {
		if b.VisitDateTime.Before(from) || !b.VisitDateTime.Before(to) {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		out = append(out, clone(b))
	}
	sortByVisit(out)
	return out, nil
}

func (r *Repository) Update(ctx context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	stored, ok := r.bookings[b.ID]
	if !ok {
		return booking.ErrNotFound
	}
	stored.Name = b.Name
	stored.Surname = b.Surname
	stored.Email = b.Email
	stored.VisitDateTime = b.VisitDateTime
	stored.PartySize = b.PartySize
	stored.GuideRequired = b.GuideRequired
	stored.AgeGroup = b.AgeGroup
	stored.UpdatedAt = r.Now()
	b.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.bookings[id]; !ok {
		return booking.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *Repository) ConfirmByToken(ctx context.Context, token string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, b := range r.bookings {
		if b.Status == booking.StatusPendingConfirmation && b.ConfirmationToken != nil && *b.ConfirmationToken == token {
			b.Status = booking.StatusConfirmed
			b.ConfirmationToken = nil
			b.UpdatedAt = r.Now()
			return clone(b), nil
		}
	}
	return nil, booking.ErrInvalidToken
}

func (r *Repository) Transition(ctx context.Context, id string, from []booking.Status, to booking.Status) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			b.ConfirmationToken = nil
			b.UpdatedAt = r.Now()
			return clone(b), nil
		}
	}
	return nil, booking.ErrInvalidTransition
}

func (r *Repository) CountByStatus(ctx context.Context, status booking.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	n := 0
	for _, b := range r.bookings {
		if b.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *Repository) DeleteVisitedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for id, b := range r.bookings {
		if b.VisitDateTime.Before(cutoff) {
			delete(r.bookings, id)
			n++
		}
	}
	return n, nil
}

func clone(b *booking.Booking) *booking.Booking {
	c := *b
	if b.ConfirmationToken != nil {
		t := *b.ConfirmationToken
		c.ConfirmationToken = &t
	}
	return &c
}

func sortByVisit(bs []*booking.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].VisitDateTime.Equal(bs[j].VisitDateTime) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].VisitDateTime.Before(bs[j].VisitDateTime)
	})
}

// Sent is one notification recorded by Notifier.
type Sent struct {
	Kind      string // "confirmation", "approval" or "rejection"
	BookingID string
	Token     string
	Reason    string
}

// Notifier records every notification. Set Err to make every send fail after recording.
type Notifier struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (n *Notifier) SendConfirmation(ctx context.Context, b *booking.Booking) error {
	token := ""
	if b.ConfirmationToken != nil {
		token = *b.ConfirmationToken
	}
	return n.record(Sent{Kind: "confirmation", BookingID: b.ID, Token: token})
}

func (n *Notifier) SendApproval(ctx context.Context, b *booking.Booking) error {
	return n.record(Sent{Kind: "approval", BookingID: b.ID})
}

func (n *Notifier) SendRejection(ctx context.Context, b *booking.Booking, reason string) error {
	return n.record(Sent{Kind: "rejection", BookingID: b.ID, Reason: reason})
}

// Sent returns a copy of the recorded notifications in send order.
func (n *Notifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

func (n *Notifier) record(s Sent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	return n.Err
}
