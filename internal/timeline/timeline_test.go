package timeline

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"campustrace/internal/alertfeed"
	"campustrace/internal/campus"
)

func bundleWith(act campus.Activity) campus.Bundle {
	return campus.Bundle{
		Profile:  campus.Profile{EntityID: "E100000"},
		Activity: act,
	}
}

func TestBuildSortsAscending(t *testing.T) {
	act := campus.Activity{
		CardSwipes: []campus.CardSwipe{
			{CardID: "C1", Timestamp: "2024-01-03T09:00:00Z", LocationID: "L1"},
			{CardID: "C1", Timestamp: "2024-01-01T09:00:00Z", LocationID: "L2"},
		},
		LabBookings: []campus.LabBooking{
			{EntityID: "E100000", StartTime: "2024-01-02T14:00:00Z", EndTime: "2024-01-02T16:00:00Z", RoomID: "LAB_2"},
		},
		WifiLogs: []campus.WifiLog{
			{DeviceHash: "D1", Timestamp: "2024-01-04T08:30:00Z", APID: "AP_7"},
		},
		LibraryCheckouts: []campus.LibraryCheckout{
			{EntityID: "E100000", Timestamp: "2024-01-01T21:00:00Z", BookID: "B42"},
		},
		Notes: []campus.Note{
			{EntityID: "E100000", Timestamp: "2024-01-03T23:00:00Z", Category: "helpdesk", Text: "lost card"},
		},
		CctvFrames: []campus.CctvFrame{
			{FaceID: "F1", Timestamp: "2024-01-02T07:00:00Z", LocationID: "GATE_1"},
		},
		Alerts: []alertfeed.Alert{
			{EntityID: "E100000", AlertTimestamp: "2024-01-05T06:00:00Z", PredictedLocation: "ADMIN_AREA", Confidence: 0.5, Reason: "Standard prediction."},
		},
	}

	// any permutation of input order within each list must produce the
	// same non-decreasing output
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		rng.Shuffle(len(act.CardSwipes), func(i, j int) {
			act.CardSwipes[i], act.CardSwipes[j] = act.CardSwipes[j], act.CardSwipes[i]
		})

		events := Build(bundleWith(act))
		if len(events) != 8 {
			t.Fatalf("expected 8 events, got %d", len(events))
		}
		for i := 1; i < len(events); i++ {
			if events[i].SortTime.Before(events[i-1].SortTime) {
				t.Fatalf("trial %d: events out of order at %d: %v after %v",
					trial, i, events[i].SortTime, events[i-1].SortTime)
			}
		}
	}
}

func TestBuildDropsUnparseableTimestamps(t *testing.T) {
	act := campus.Activity{
		CardSwipes: []campus.CardSwipe{
			{CardID: "C1", Timestamp: "", LocationID: "L1"},
			{CardID: "C1", Timestamp: "not-a-time", LocationID: "L2"},
			{CardID: "C1", Timestamp: "2024-01-01T09:00:00Z", LocationID: "L3"},
		},
		LabBookings: []campus.LabBooking{
			{EntityID: "E1", StartTime: "garbage", EndTime: "2024-01-02T16:00:00Z"},
		},
		Alerts: []alertfeed.Alert{
			{EntityID: "E1", AlertTimestamp: "???", Reason: "ALERT: x"},
		},
	}

	events := Build(bundleWith(act))
	if len(events) != 1 {
		t.Fatalf("expected only the parseable record to survive, got %d events", len(events))
	}
	if events[0].Details != "Location: L3" {
		t.Errorf("unexpected surviving event: %+v", events[0])
	}
}

func TestBuildEmptyBundle(t *testing.T) {
	events := Build(bundleWith(campus.Activity{}))
	if events == nil {
		t.Fatal("expected non-nil empty timeline")
	}
	if len(events) != 0 {
		t.Fatalf("expected empty timeline, got %d events", len(events))
	}
}

func TestLabBookingAttended(t *testing.T) {
	tests := []struct {
		name string
		flag string
		want bool
	}{
		{"literal YES", "YES", true},
		{"literal NO", "NO", false},
		{"lowercase yes", "yes", false},
		{"empty", "", false},
		{"whitespace padded", " YES", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := campus.Activity{LabBookings: []campus.LabBooking{{
				EntityID:  "E1",
				StartTime: "2024-01-02T14:00:00Z",
				EndTime:   "2024-01-02T16:00:00Z",
				RoomID:    "LAB_9",
				Attended:  tt.flag,
			}}}
			events := Build(bundleWith(act))
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Attended == nil {
				t.Fatal("lab booking event must carry attended flag")
			}
			if *events[0].Attended != tt.want {
				t.Errorf("attended = %v, want %v", *events[0].Attended, tt.want)
			}
		})
	}
}

func TestLabBookingTimeRange(t *testing.T) {
	act := campus.Activity{LabBookings: []campus.LabBooking{{
		EntityID:  "E1",
		StartTime: "2024-01-02T14:00:00Z",
		EndTime:   "2024-01-02T16:00:00Z",
	}}}
	events := Build(bundleWith(act))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := "2024-01-02T14:00:00Z - 2024-01-02T16:00:00Z"
	if events[0].Time != want {
		t.Errorf("time range = %q, want %q", events[0].Time, want)
	}
	if events[0].Details != "Booked: Unknown Lab" {
		t.Errorf("details = %q, want room fallback", events[0].Details)
	}
}

func TestDetailsFallbacks(t *testing.T) {
	act := campus.Activity{
		CardSwipes:       []campus.CardSwipe{{Timestamp: "2024-01-01T08:00:00Z"}},
		WifiLogs:         []campus.WifiLog{{Timestamp: "2024-01-01T09:00:00Z"}},
		CctvFrames:       []campus.CctvFrame{{Timestamp: "2024-01-01T10:00:00Z"}},
		LibraryCheckouts: []campus.LibraryCheckout{{Timestamp: "2024-01-01T11:00:00Z"}},
		Notes:            []campus.Note{{Timestamp: "2024-01-01T12:00:00Z"}},
	}
	events := Build(bundleWith(act))
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	want := map[Kind]string{
		KindCardSwipe:       "Location: Unknown",
		KindWifiLog:         "Connected to AP: Unknown",
		KindCctvFrame:       "Detected near: Unknown",
		KindLibraryCheckout: "Checked out book: Unknown",
		KindNote:            "Note (General): No details",
	}
	for _, evt := range events {
		if evt.Details != want[evt.Kind] {
			t.Errorf("%s details = %q, want %q", evt.Kind, evt.Details, want[evt.Kind])
		}
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		reason string
		want   Severity
	}{
		{"ALERT: anomaly detected", SeverityHigh},
		{"ALERT: Predicted entry to sensitive area.", SeverityHigh},
		{"Unusual pattern", SeverityMedium},
		{"Unusual: Auditorium prediction after-hours.", SeverityMedium},
		{"Notice: Low confidence in this prediction.", SeverityLow},
		{"Standard prediction.", SeverityLow},
		{"Routine", SeverityLow},
		{"", SeverityLow},
		{"alert: lowercase does not count", SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			if got := ClassifySeverity(tt.reason); got != tt.want {
				t.Errorf("ClassifySeverity(%q) = %q, want %q", tt.reason, got, tt.want)
			}
		})
	}
}

func TestPercentConfidence(t *testing.T) {
	tests := []struct {
		fraction float64
		want     int
	}{
		{0.87, 87},
		{0.875, 88},
		{0.004, 0},
		{0.005, 1},
		{1.0, 100},
		{0, 0},
	}
	for _, tt := range tests {
		if got := PercentConfidence(tt.fraction); got != tt.want {
			t.Errorf("PercentConfidence(%v) = %d, want %d", tt.fraction, got, tt.want)
		}
	}
}

func TestBuildEndToEndExample(t *testing.T) {
	act := campus.Activity{
		CardSwipes: []campus.CardSwipe{
			{CardID: "C55", Timestamp: "2024-01-01T08:00:00Z", LocationID: "L1"},
		},
		Alerts: []alertfeed.Alert{{
			EntityID:          "E100000",
			AlertTimestamp:    "2024-01-01T20:00:00Z",
			PredictedLocation: "ADMIN_AREA",
			Confidence:        0.87,
			Reason:            "ALERT: left campus",
		}},
	}

	events := Build(bundleWith(act))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	swipe, alert := events[0], events[1]
	if swipe.Kind != KindCardSwipe {
		t.Fatalf("card swipe should sort first, got %s", swipe.Kind)
	}
	if swipe.Details != "Location: L1" {
		t.Errorf("swipe details = %q", swipe.Details)
	}
	if alert.Kind != KindAlert {
		t.Fatalf("expected alert second, got %s", alert.Kind)
	}
	if alert.Severity != SeverityHigh {
		t.Errorf("alert severity = %q, want high", alert.Severity)
	}
	if !strings.Contains(alert.Title, "ADMIN_AREA") {
		t.Errorf("alert title %q should embed predicted location", alert.Title)
	}
	if !strings.Contains(alert.Details, "87%") {
		t.Errorf("alert details %q should render confidence as 87%%", alert.Details)
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	act := campus.Activity{
		CardSwipes: []campus.CardSwipe{
			{CardID: "C1", Timestamp: "2024-01-03T09:00:00Z", LocationID: "L1"},
			{CardID: "C1", Timestamp: "2024-01-01T09:00:00Z", LocationID: "L2"},
		},
	}
	before := make([]campus.CardSwipe, len(act.CardSwipes))
	copy(before, act.CardSwipes)

	Build(bundleWith(act))

	for i := range before {
		if act.CardSwipes[i] != before[i] {
			t.Fatalf("input list mutated at %d", i)
		}
	}
}

func TestParseWhenLayouts(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-01-01T08:00:00Z", true},
		{"2024-01-01T08:00:00.123Z", true},
		{"2024-01-01T08:00:00", true},
		{"2024-01-01 08:00:00", true},
		{"01/02/2024", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := parseWhen(tt.in); ok != tt.ok {
			t.Errorf("parseWhen(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
	if when, _ := parseWhen("2024-01-01T08:00:00Z"); !when.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)) {
		t.Error("RFC3339 value parsed to wrong instant")
	}
}
