package timeline

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"campustrace/internal/campus"
)

// Kind labels the source a timeline event came from.
type Kind string

const (
	KindCardSwipe       Kind = "Card Swipe"
	KindLabBooking      Kind = "Lab Booking"
	KindLibraryCheckout Kind = "Library Checkout"
	KindWifiLog         Kind = "Wi-Fi Log"
	KindNote            Kind = "Note"
	KindCctvFrame       Kind = "CCTV Frame"
	KindAlert           Kind = "Alert"
)

// Severity classifies alert events for display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Event is one normalized timeline entry. Time is the display string (a
// range for lab bookings); SortTime is the absolute instant ordering the
// merged sequence. Attended is set for lab bookings only, Severity for
// alerts only.
type Event struct {
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Time     string    `json:"time"`
	SortTime time.Time `json:"sort_time"`
	Details  string    `json:"details"`
	Attended *bool     `json:"attended,omitempty"`
	Severity Severity  `json:"severity,omitempty"`
}

// timestamp layouts accepted across the sources; anything else drops the record
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseWhen(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func orElse(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

// Build turns a bundle into the merged, chronologically sorted timeline.
// Records without a parseable primary timestamp are dropped. The input is
// never mutated and the result is always non-nil.
func Build(b campus.Bundle) []Event {
	events := []Event{}
	for _, extract := range extractors {
		events = append(events, extract(b.Activity)...)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].SortTime.Before(events[j].SortTime)
	})
	return events
}

// extractors dispatches one mapping function per source kind.
var extractors = []func(campus.Activity) []Event{
	cardSwipeEvents,
	labBookingEvents,
	libraryCheckoutEvents,
	wifiLogEvents,
	noteEvents,
	cctvFrameEvents,
	alertEvents,
}

func cardSwipeEvents(a campus.Activity) []Event {
	var out []Event
	for _, s := range a.CardSwipes {
		when, ok := parseWhen(s.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindCardSwipe,
			Title:    string(KindCardSwipe),
			Time:     s.Timestamp,
			SortTime: when,
			Details:  "Location: " + orElse(s.LocationID, "Unknown"),
		})
	}
	return out
}

func labBookingEvents(a campus.Activity) []Event {
	var out []Event
	for _, b := range a.LabBookings {
		when, ok := parseWhen(b.StartTime)
		if !ok {
			continue
		}
		attended := b.Attended == "YES"
		out = append(out, Event{
			Kind:     KindLabBooking,
			Title:    string(KindLabBooking),
			Time:     b.StartTime + " - " + b.EndTime,
			SortTime: when,
			Details:  "Booked: " + orElse(b.RoomID, "Unknown Lab"),
			Attended: &attended,
		})
	}
	return out
}

func libraryCheckoutEvents(a campus.Activity) []Event {
	var out []Event
	for _, c := range a.LibraryCheckouts {
		when, ok := parseWhen(c.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindLibraryCheckout,
			Title:    string(KindLibraryCheckout),
			Time:     c.Timestamp,
			SortTime: when,
			Details:  "Checked out book: " + orElse(c.BookID, "Unknown"),
		})
	}
	return out
}

func wifiLogEvents(a campus.Activity) []Event {
	var out []Event
	for _, w := range a.WifiLogs {
		when, ok := parseWhen(w.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindWifiLog,
			Title:    string(KindWifiLog),
			Time:     w.Timestamp,
			SortTime: when,
			Details:  "Connected to AP: " + orElse(w.APID, "Unknown"),
		})
	}
	return out
}

func noteEvents(a campus.Activity) []Event {
	var out []Event
	for _, n := range a.Notes {
		when, ok := parseWhen(n.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindNote,
			Title:    string(KindNote),
			Time:     n.Timestamp,
			SortTime: when,
			Details:  fmt.Sprintf("Note (%s): %s", orElse(n.Category, "General"), orElse(n.Text, "No details")),
		})
	}
	return out
}

func cctvFrameEvents(a campus.Activity) []Event {
	var out []Event
	for _, f := range a.CctvFrames {
		when, ok := parseWhen(f.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindCctvFrame,
			Title:    string(KindCctvFrame),
			Time:     f.Timestamp,
			SortTime: when,
			Details:  "Detected near: " + orElse(f.LocationID, "Unknown"),
		})
	}
	return out
}

func alertEvents(a campus.Activity) []Event {
	var out []Event
	for _, al := range a.Alerts {
		when, ok := parseWhen(al.AlertTimestamp)
		if !ok {
			continue
		}
		out = append(out, Event{
			Kind:     KindAlert,
			Title:    fmt.Sprintf("Predictive Alert: %s", orElse(al.PredictedLocation, "Unknown")),
			Time:     al.AlertTimestamp,
			SortTime: when,
			Details:  fmt.Sprintf("%s (confidence %d%%)", orElse(al.Reason, "No details"), PercentConfidence(al.Confidence)),
			Severity: ClassifySeverity(al.Reason),
		})
	}
	return out
}

// ClassifySeverity maps an alert reason to a severity by its prefix. The
// prefixes come from the predictor's reason generator; anything it does
// not recognize lands in low.
func ClassifySeverity(reason string) Severity {
	switch {
	case strings.HasPrefix(reason, "ALERT"):
		return SeverityHigh
	case strings.HasPrefix(reason, "Unusual"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PercentConfidence renders a confidence fraction as a whole-number
// percentage, rounded to nearest.
func PercentConfidence(fraction float64) int {
	return int(math.Round(fraction * 100))
}
