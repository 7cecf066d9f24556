package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/apperror"
)

// Repository is the booking store. Every mutation touches exactly one row, except
// DeleteVisitedBefore which is the retention sweep.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	// ListByVisitRange returns bookings visiting in [from, to), optionally only those in status.
	ListByVisitRange(ctx context.Context, from, to time.Time, status *Status) ([]*Booking, error)
	// Update writes the visitor-editable fields. Status and token are left untouched.
	Update(ctx context.Context, b *Booking) error
	Delete(ctx context.Context, id string) error

	// ConfirmByToken atomically moves the pending booking holding token to confirmed and
	// clears the token. It returns ErrInvalidToken when no pending booking holds it.
	ConfirmByToken(ctx context.Context, token string) (*Booking, error)
	// Transition atomically moves booking id from one of the from statuses to to, clearing
	// the token. It returns ErrNotFound or ErrInvalidTransition when nothing matched.
	Transition(ctx context.Context, id string, from []Status, to Status) (*Booking, error)

	CountByStatus(ctx context.Context, status Status) (int, error)
	// DeleteVisitedBefore removes every booking whose visit is strictly before cutoff.
	DeleteVisitedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var bookingColumns = []string{
	"id", "name", "surname", "email", "visit_date_time", "party_size",
	"guide_required", "age_group", "status", "confirmation_token", "created_at", "updated_at",
}

var sortColumns = map[string]string{
	"visit_date_time": "visit_date_time",
	"created_at":      "created_at",
	"party_size":      "party_size",
	"status":          "status",
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	query, args, err := psql().Insert("public.bookings").
		Columns("name", "surname", "email", "visit_date_time", "party_size",
			"guide_required", "age_group", "status", "confirmation_token").
		Values(b.Name, b.Surname, b.Email, b.VisitDateTime, b.PartySize,
			b.GuideRequired, nullableAgeGroup(b.AgeGroup), b.Status.String(), b.ConfirmationToken).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return mapWriteError(err, "create booking")
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	query, args, err := psql().Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, mapWriteError(err, "get booking")
	}
	return b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	query := psql().Select(append(bookingColumns, "count(*) OVER() AS total_count")...).
		From("public.bookings")

	if filter.Status != nil {
		query = query.Where(squirrel.Eq{"status": filter.Status.String()})
	}
	if filter.VisitFrom != nil {
		query = query.Where(squirrel.GtOrEq{"visit_date_time": *filter.VisitFrom})
	}
	if filter.VisitTo != nil {
		query = query.Where(squirrel.Lt{"visit_date_time": *filter.VisitTo})
	}

	// Sorting
	orderBy, ok := sortColumns[filter.SortBy]
	if !ok {
		orderBy = "visit_date_time"
	}
	orderDir := "ASC"
	if strings.EqualFold(filter.SortOrder, "DESC") {
		orderDir = "DESC"
	}
	query = query.OrderBy(orderBy+" "+orderDir, "id ASC")

	// Pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		b, err := scanBooking(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate bookings failed: %w", err)
	}

	return bookings, total, nil
}

func (r *pgxRepository) ListByVisitRange(ctx context.Context, from, to time.Time, status *Status) ([]*Booking, error) {
	query := psql().Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.GtOrEq{"visit_date_time": from}).
		Where(squirrel.Lt{"visit_date_time": to}).
		OrderBy("visit_date_time ASC")
	if status != nil {
		query = query.Where(squirrel.Eq{"status": status.String()})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bookings by visit range query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings by visit range failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings failed: %w", err)
	}
	return bookings, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Booking) error {
	query, args, err := psql().Update("public.bookings").
		Set("name", b.Name).
		Set("surname", b.Surname).
		Set("email", b.Email).
		Set("visit_date_time", b.VisitDateTime).
		Set("party_size", b.PartySize).
		Set("guide_required", b.GuideRequired).
		Set("age_group", nullableAgeGroup(b.AgeGroup)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&b.UpdatedAt); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return mapWriteError(err, "update booking")
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	query, args, err := psql().Delete("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete booking query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err, "delete booking")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ConfirmByToken(ctx context.Context, token string) (*Booking, error) {
	query, args, err := psql().Update("public.bookings").
		Set("status", StatusConfirmed.String()).
		Set("confirmation_token", nil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{
			"confirmation_token": token,
			"status":             StatusPendingConfirmation.String(),
		}).
		Suffix("RETURNING " + strings.Join(bookingColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build confirm booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("confirm booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) Transition(ctx context.Context, id string, from []Status, to Status) (*Booking, error) {
	codes := make([]string, len(from))
	for i, s := range from {
		codes[i] = s.String()
	}

	query, args, err := psql().Update("public.bookings").
		Set("status", to.String()).
		Set("confirmation_token", nil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": codes}).
		Suffix("RETURNING " + strings.Join(bookingColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return b, nil
	}
	if !isNoRows(err) {
		return nil, mapWriteError(err, "transition booking")
	}

	// Nothing matched: tell a missing row apart from one in the wrong state.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func (r *pgxRepository) CountByStatus(ctx context.Context, status Status) (int, error) {
	query, args, err := psql().Select("count(*)").
		From("public.bookings").
		Where(squirrel.Eq{"status": status.String()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count bookings query failed: %w", err)
	}

	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings failed: %w", err)
	}
	return n, nil
}

func (r *pgxRepository) DeleteVisitedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql().Delete("public.bookings").
		Where(squirrel.Lt{"visit_date_time": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sweep bookings query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep bookings failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

// scanBooking reads bookingColumns, followed by extra destinations, from a row.
func scanBooking(row pgx.Row, extra ...any) (*Booking, error) {
	var (
		b        Booking
		ageGroup *string
		status   string
	)
	dest := append([]any{
		&b.ID, &b.Name, &b.Surname, &b.Email, &b.VisitDateTime, &b.PartySize,
		&b.GuideRequired, &ageGroup, &status, &b.ConfirmationToken, &b.CreatedAt, &b.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	st, err := ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("booking %s has unknown status %q", b.ID, status)
	}
	b.Status = st
	if ageGroup != nil {
		b.AgeGroup = AgeGroup(*ageGroup)
	}
	return &b, nil
}

func nullableAgeGroup(g AgeGroup) *string {
	if g == AgeGroupUnspecified {
		return nil
	}
	s := string(g)
	return &s
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapWriteError turns constraint violations into integrity errors and
// malformed ids into not-found.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation, pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return apperror.Integrity(err, ErrConflict.Message)
		case pgerrcode.InvalidTextRepresentation:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
