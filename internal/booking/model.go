package booking

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/apperror"
)

var (
	ErrValidation        = apperror.New(http.StatusBadRequest, "validation failed")
	ErrNotFound          = apperror.New(http.StatusNotFound, "booking not found")
	ErrInvalidToken      = apperror.New(http.StatusBadRequest, "invalid or expired confirmation token")
	ErrInvalidTransition = apperror.New(http.StatusConflict, "booking cannot change to the requested status")
	ErrConflict          = apperror.New(http.StatusConflict, "booking conflicts with an existing record")
	ErrInvalidStatus     = apperror.New(http.StatusBadRequest, "invalid booking status")
	ErrInvalidDate       = apperror.New(http.StatusBadRequest, "invalid date")
	ErrInvalidHourRange  = apperror.New(http.StatusBadRequest, "start hour and end hour must both be between 0 and 23, start <= end")
)

// Status is the lifecycle state of a booking. The zero value is not a valid status.
type Status uint8

const (
	StatusPendingConfirmation Status = iota + 1
	StatusConfirmed
	StatusRejected
)

var statusCodes = map[Status]string{
	StatusPendingConfirmation: "pending_confirmation",
	StatusConfirmed:           "confirmed",
	StatusRejected:            "rejected",
}

var statusNames = map[Status]string{
	StatusPendingConfirmation: "Pending confirmation",
	StatusConfirmed:           "Confirmed",
	StatusRejected:            "Rejected",
}

// String returns the storage code of the status.
func (s Status) String() string {
	if code, ok := statusCodes[s]; ok {
		return code
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// DisplayName returns the human-readable label shown to visitors.
func (s Status) DisplayName() string {
	return statusNames[s]
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := statusCodes[s]
	return ok
}

// ParseStatus converts a storage code back into a Status.
func ParseStatus(code string) (Status, error) {
	for s, c := range statusCodes {
		if c == code {
			return s, nil
		}
	}
	return 0, ErrInvalidStatus
}

// AgeGroup is the declared age profile of a visiting party. Empty means unspecified.
type AgeGroup string

const (
	AgeGroupUnspecified AgeGroup = ""
	AgeGroupChildren    AgeGroup = "children"
	AgeGroupTeenagers   AgeGroup = "teenagers"
	AgeGroupAdults      AgeGroup = "adults"
	AgeGroupSeniors     AgeGroup = "seniors"
	AgeGroupMixed       AgeGroup = "mixed"
)

// Valid reports whether g is unspecified or one of the declared groups.
func (g AgeGroup) Valid() bool {
	switch g {
	case AgeGroupUnspecified, AgeGroupChildren, AgeGroupTeenagers, AgeGroupAdults, AgeGroupSeniors, AgeGroupMixed:
		return true
	}
	return false
}

// Booking is a visitor's reservation request for a museum visit.
type Booking struct {
	ID                string
	Name              string
	Surname           string
	Email             string
	VisitDateTime     time.Time
	PartySize         int
	GuideRequired     bool
	AgeGroup          AgeGroup
	Status            Status
	ConfirmationToken *string // Set only while pending confirmation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Filter defines parameters for listing bookings.
type Filter struct {
	Status    *Status
	VisitFrom *time.Time // Inclusive
	VisitTo   *time.Time // Exclusive
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Rules holds the scheduling constants of the museum.
type Rules struct {
	OpeningHour  int
	ClosingHour  int
	SlotHours    int
	SlotCapacity int
	Retention    time.Duration
	TokenTTL     time.Duration
	Location     *time.Location
}

// DefaultRules returns the museum's standard schedule: 09:00-17:00 in 2-hour slots of 2 bookings.
func DefaultRules() Rules {
	return Rules{
		OpeningHour:  9,
		ClosingHour:  17,
		SlotHours:    2,
		SlotCapacity: 2,
		Retention:    72 * time.Hour,
		TokenTTL:     24 * time.Hour,
		Location:     time.UTC,
	}
}

// Validate checks that the rules describe at least one slot.
func (r Rules) Validate() error {
	if r.OpeningHour < 0 || r.ClosingHour > 24 || r.OpeningHour >= r.ClosingHour {
		return fmt.Errorf("opening hour %d must be before closing hour %d within 0-24", r.OpeningHour, r.ClosingHour)
	}
	if r.SlotHours < 1 || r.SlotHours > r.ClosingHour-r.OpeningHour {
		return fmt.Errorf("slot length %dh does not fit the %02d:00-%02d:00 window", r.SlotHours, r.OpeningHour, r.ClosingHour)
	}
	if r.SlotCapacity < 1 {
		return fmt.Errorf("slot capacity must be at least 1, got %d", r.SlotCapacity)
	}
	if r.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", r.Retention)
	}
	return nil
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}
