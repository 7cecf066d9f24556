// Package notify delivers booking emails outside the request path.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
)

// Kind identifies the booking event an email is about.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindApproval     Kind = "approval"
	KindRejection    Kind = "rejection"
)

// Message is one rendered email. It is also the AMQP payload.
type Message struct {
	Kind      Kind      `json:"kind"`
	BookingID string    `json:"booking_id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RoutingKey is the topic under which the message is published.
func (m Message) RoutingKey() string {
	return "notification.email." + string(m.Kind)
}

// Renderer turns booking events into emails.
type Renderer struct {
	MuseumName     string
	ConfirmURLBase string // The confirmation token is appended as is
	TokenTTL       time.Duration
	Location       *time.Location
	Now            func() time.Time
}

func (r Renderer) Confirmation(b *booking.Booking) Message {
	token := ""
	if b.ConfirmationToken != nil {
		token = *b.ConfirmationToken
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s %s,\n\n", b.Name, b.Surname)
	fmt.Fprintf(&body, "we received your booking request for %s.\n", r.describe(b))
	fmt.Fprintf(&body, "Please confirm it by opening the link below:\n\n%s%s\n\n", r.ConfirmURLBase, token)
	if r.TokenTTL > 0 {
		fmt.Fprintf(&body, "Unconfirmed requests are not held; please confirm within %s.\n\n", humanDuration(r.TokenTTL))
	}
	body.WriteString("If you did not make this request, you can ignore this email.\n")

	return r.message(KindConfirmation, b, "Please confirm your visit to "+r.museum(), body.String())
}

func (r Renderer) Approval(b *booking.Booking) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s %s,\n\n", b.Name, b.Surname)
	fmt.Fprintf(&body, "your booking for %s is confirmed.\n", r.describe(b))
	if b.GuideRequired {
		body.WriteString("A guide will be waiting for your group at the entrance.\n")
	}
	fmt.Fprintf(&body, "\nWe look forward to welcoming you at %s.\n", r.museum())

	return r.message(KindApproval, b, "Your visit to "+r.museum()+" is confirmed", body.String())
}

func (r Renderer) Rejection(b *booking.Booking, reason string) Message {
	if reason == "" {
		reason = booking.DefaultRejectionReason
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s %s,\n\n", b.Name, b.Surname)
	fmt.Fprintf(&body, "we are sorry, but your booking for %s could not be accepted.\n\n", r.describe(b))
	fmt.Fprintf(&body, "Reason: %s\n\n", reason)
	body.WriteString("You are welcome to request another date on our website.\n")

	return r.message(KindRejection, b, "Your booking at "+r.museum()+" was not accepted", body.String())
}

func (r Renderer) message(kind Kind, b *booking.Booking, subject, body string) Message {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Message{
		Kind:      kind,
		BookingID: b.ID,
		To:        b.Email,
		Subject:   subject,
		Body:      body,
		CreatedAt: now().UTC(),
	}
}

func (r Renderer) describe(b *booking.Booking) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	people := "person"
	if b.PartySize != 1 {
		people = "people"
	}
	return fmt.Sprintf("%d %s on %s", b.PartySize, people, b.VisitDateTime.In(loc).Format("Monday, 2 January 2006 at 15:04"))
}

func (r Renderer) museum() string {
	if r.MuseumName == "" {
		return "the museum"
	}
	return r.MuseumName
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}
