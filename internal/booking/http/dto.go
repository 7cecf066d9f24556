package http

import (
	"time"

	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/request"
)

// Layouts accepted for visit_date_time. Values without an offset are read in the museum's time zone.
var visitLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseVisitTime parses a client-supplied visit time. An empty value yields the zero time so
// the service can report the field as missing.
func parseVisitTime(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range visitLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperror.Validation(map[string]string{
		"visit_date_time": "must be a date-time like 2025-07-10T09:00",
	})
}

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	request.ListParams
	Status    string `form:"status" binding:"omitempty,oneof=pending_confirmation confirmed rejected"`
	VisitFrom string `form:"visit_from" binding:"omitempty,datetime=2006-01-02"`
	VisitTo   string `form:"visit_to" binding:"omitempty,datetime=2006-01-02"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=visit_date_time created_at party_size status"`
}

// Filter converts the query into a booking.Filter. Dates are whole days in loc; visit_to is inclusive.
func (r *ListBookingsRequest) Filter(loc *time.Location) (booking.Filter, error) {
	r.Normalize()
	f := booking.Filter{
		Page:      r.Page,
		PageSize:  r.PageSize,
		SortBy:    r.SortBy,
		SortOrder: r.SortOrder,
	}

	if r.Status != "" {
		s, err := booking.ParseStatus(r.Status)
		if err != nil {
			return f, err
		}
		f.Status = &s
	}
	if r.VisitFrom != "" {
		from, err := time.ParseInLocation(booking.DateLayout, r.VisitFrom, loc)
		if err != nil {
			return f, booking.ErrInvalidDate
		}
		f.VisitFrom = &from
	}
	if r.VisitTo != "" {
		to, err := time.ParseInLocation(booking.DateLayout, r.VisitTo, loc)
		if err != nil {
			return f, booking.ErrInvalidDate
		}
		to = to.AddDate(0, 0, 1)
		f.VisitTo = &to
	}
	if f.VisitFrom != nil && f.VisitTo != nil && !f.VisitFrom.Before(*f.VisitTo) {
		return f, booking.ErrInvalidDate
	}
	return f, nil
}

type BookingResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Surname       string    `json:"surname"`
	Email         string    `json:"email"`
	VisitDateTime time.Time `json:"visit_date_time"`
	PartySize     int       `json:"party_size"`
	GuideRequired bool      `json:"guide_required"`
	AgeGroup      string    `json:"age_group,omitempty"`
	Status        string    `json:"status"`
	StatusLabel   string    `json:"status_label"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		Name:          b.Name,
		Surname:       b.Surname,
		Email:         b.Email,
		VisitDateTime: b.VisitDateTime,
		PartySize:     b.PartySize,
		GuideRequired: b.GuideRequired,
		AgeGroup:      string(b.AgeGroup),
		Status:        b.Status.String(),
		StatusLabel:   b.Status.DisplayName(),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// CreateBookingRequest is the public booking form. Field presence is checked by the service
// so every problem is reported in one response.
type CreateBookingRequest struct {
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	Email         string `json:"email"`
	VisitDateTime string `json:"visit_date_time"`
	PartySize     int    `json:"party_size"`
	GuideRequired bool   `json:"guide_required"`
	AgeGroup      string `json:"age_group" binding:"omitempty,oneof=children teenagers adults seniors mixed"`
}

func (r *CreateBookingRequest) ToCreateRequest(loc *time.Location) (booking.CreateRequest, error) {
	visit, err := parseVisitTime(r.VisitDateTime, loc)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	return booking.CreateRequest{
		Name:          r.Name,
		Surname:       r.Surname,
		Email:         r.Email,
		VisitDateTime: visit,
		PartySize:     r.PartySize,
		GuideRequired: r.GuideRequired,
		AgeGroup:      booking.AgeGroup(r.AgeGroup),
	}, nil
}

// UpdateBookingRequest carries the booking id in the body. Nil fields are left unchanged.
type UpdateBookingRequest struct {
	ID            string  `json:"id" binding:"required,uuid"`
	Name          *string `json:"name"`
	Surname       *string `json:"surname"`
	Email         *string `json:"email"`
	VisitDateTime *string `json:"visit_date_time"`
	PartySize     *int    `json:"party_size"`
	GuideRequired *bool   `json:"guide_required"`
	AgeGroup      *string `json:"age_group" binding:"omitempty,oneof=children teenagers adults seniors mixed"`
}

func (r *UpdateBookingRequest) ToUpdateRequest(loc *time.Location) (booking.UpdateRequest, error) {
	req := booking.UpdateRequest{
		Name:          r.Name,
		Surname:       r.Surname,
		Email:         r.Email,
		PartySize:     r.PartySize,
		GuideRequired: r.GuideRequired,
	}
	if r.VisitDateTime != nil {
		visit, err := parseVisitTime(*r.VisitDateTime, loc)
		if err != nil {
			return req, err
		}
		req.VisitDateTime = &visit
	}
	if r.AgeGroup != nil {
		g := booking.AgeGroup(*r.AgeGroup)
		req.AgeGroup = &g
	}
	return req, nil
}

type RejectBookingRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type ConfirmRequest struct {
	Token string `uri:"token" binding:"required"`
}

// ConfirmedCountRequest asks for one hour range of a day, or for every slot of the day when
// both hours are omitted. Hours are accepted as startHour/endHour or start_hour/end_hour.
type ConfirmedCountRequest struct {
	Date           string `form:"date" binding:"required,datetime=2006-01-02"`
	StartHour      *int   `form:"startHour" binding:"omitempty,min=0,max=23"`
	EndHour        *int   `form:"endHour" binding:"omitempty,min=0,max=23"`
	StartHourSnake *int   `form:"start_hour" binding:"omitempty,min=0,max=23"`
	EndHourSnake   *int   `form:"end_hour" binding:"omitempty,min=0,max=23"`
}

// Validate folds the snake_case spelling into StartHour/EndHour and checks the range.
func (r *ConfirmedCountRequest) Validate() error {
	if r.StartHour == nil {
		r.StartHour = r.StartHourSnake
	}
	if r.EndHour == nil {
		r.EndHour = r.EndHourSnake
	}

	if (r.StartHour == nil) != (r.EndHour == nil) {
		return apperror.Validation(map[string]string{
			"startHour": "startHour and endHour must be given together",
		})
	}
	if r.StartHour != nil && *r.StartHour > *r.EndHour {
		return booking.ErrInvalidHourRange
	}
	return nil
}

type ConfirmedCountResponse struct {
	Date      string `json:"date"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Count     int    `json:"count"`
}

type DaySlotsResponse struct {
	Date  string         `json:"date"`
	Slots map[string]int `json:"slots"`
}

type DensityRequest struct {
	Year  int `uri:"year" binding:"required,min=1,max=9999"`
	Month int `uri:"month" binding:"required,min=1,max=12"`
}

type SlotResponse struct {
	Label     string `json:"label"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Count     int    `json:"count"`
	State     string `json:"state"`
}

type DayOccupancyResponse struct {
	Status         string         `json:"status"`
	TotalSlots     int            `json:"total_slots"`
	AvailableSlots int            `json:"available_slots"`
	FullSlots      int            `json:"full_slots"`
	PartialSlots   int            `json:"partial_slots"`
	EmptySlots     int            `json:"empty_slots"`
	Slots          []SlotResponse `json:"slots"`
}

func NewDayOccupancyResponse(d booking.DayOccupancy) DayOccupancyResponse {
	slots := make([]SlotResponse, len(d.Slots))
	for i, s := range d.Slots {
		slots[i] = SlotResponse{
			Label:     s.Label,
			StartHour: s.StartHour,
			EndHour:   s.EndHour,
			Count:     s.Count,
			State:     string(s.State),
		}
	}
	return DayOccupancyResponse{
		Status:         string(d.Status),
		TotalSlots:     d.TotalSlots,
		AvailableSlots: d.AvailableSlots,
		FullSlots:      d.FullSlots,
		PartialSlots:   d.PartialSlots,
		EmptySlots:     d.EmptySlots,
		Slots:          slots,
	}
}

type CountResponse struct {
	Count int `json:"count"`
}

type SweepResponse struct {
	Deleted int64 `json:"deleted"`
}
