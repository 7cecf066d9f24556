package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/response"
)

// SweepRunner runs one retention sweep on demand.
type SweepRunner interface {
	RunOnce(ctx context.Context) (int64, error)
}

type Handler struct {
	service booking.Service
	sweeper SweepRunner
	loc     *time.Location
}

func NewHandler(service booking.Service, sweeper SweepRunner) *Handler {
	loc := service.Rules().Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, sweeper: sweeper, loc: loc}
}

// === Public ===

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	req, err := body.ToCreateRequest(h.loc)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.MessageResponse{
		Message: "Booking received. Please check your email to confirm it.",
		Status:  b.Status.DisplayName(),
	})
}

func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.Error(c, booking.ErrInvalidToken)
		return
	}

	b, err := h.service.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.MessageResponse{
		Message: "Booking confirmed",
		Status:  b.Status.DisplayName(),
	})
}

func (h *Handler) ConfirmedCount(c *gin.Context) {
	var req ConfirmedCountRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	day, err := time.ParseInLocation(booking.DateLayout, req.Date, h.loc)
	if err != nil {
		response.Error(c, booking.ErrInvalidDate)
		return
	}

	ctx := c.Request.Context()
	if req.StartHour != nil {
		n, err := h.service.CountConfirmed(ctx, day, *req.StartHour, *req.EndHour)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, ConfirmedCountResponse{
			Date:      req.Date,
			StartHour: *req.StartHour,
			EndHour:   *req.EndHour,
			Count:     n,
		})
		return
	}

	slots, err := h.service.SlotsForDay(ctx, day)
	if err != nil {
		response.Error(c, err)
		return
	}
	counts := make(map[string]int, len(slots))
	for _, s := range slots {
		counts[s.Label] = s.Count
	}
	c.JSON(http.StatusOK, DaySlotsResponse{Date: req.Date, Slots: counts})
}

func (h *Handler) CalendarDensity(c *gin.Context) {
	var req DensityRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid year or month", err)
		return
	}

	days, err := h.service.DensityForMonth(c.Request.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := make(map[string]DayOccupancyResponse, len(days))
	for date, d := range days {
		resp[date] = NewDayOccupancyResponse(d)
	}
	c.JSON(http.StatusOK, resp)
}

// === Administration ===

// List returns confirmed bookings only.
func (h *Handler) List(c *gin.Context) {
	h.list(c, true)
}

// ListAll returns bookings of any status, optionally filtered by status.
func (h *Handler) ListAll(c *gin.Context) {
	h.list(c, false)
}

func (h *Handler) list(c *gin.Context, confirmedOnly bool) {
	var req ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	filter, err := req.Filter(h.loc)
	if err != nil {
		response.Error(c, err)
		return
	}
	if confirmedOnly {
		confirmed := booking.StatusConfirmed
		filter.Status = &confirmed
	}

	list, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(list))
	for i, b := range list {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, filter.Page, filter.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Update(c *gin.Context) {
	var body UpdateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	req, err := body.ToUpdateRequest(h.loc)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.Update(c.Request.Context(), body.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Delete(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), req.ID); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) PendingCount(c *gin.Context) {
	n, err := h.service.CountPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) Approve(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	b, err := h.service.Approve(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Reject(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	// The body is optional; without it the default reason is used.
	var body RejectBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	b, err := h.service.Reject(c.Request.Context(), uri.ID, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Sweep(c *gin.Context) {
	n, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, SweepResponse{Deleted: n})
}
