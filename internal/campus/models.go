package campus

import (
	"time"

	"campustrace/internal/alertfeed"
)

// Profile is the master record for one tracked entity. The three linking
// keys (card_id, device_hash, face_id) join into their respective activity
// sources and may each be absent.
type Profile struct {
	EntityID   string  `json:"entity_id"`
	Name       *string `json:"name,omitempty"`
	Role       *string `json:"role,omitempty"`
	Email      *string `json:"email,omitempty"`
	Department *string `json:"department,omitempty"`
	StudentID  *string `json:"student_id,omitempty"`
	CardID     *string `json:"card_id,omitempty"`
	DeviceHash *string `json:"device_hash,omitempty"`
	FaceID     *string `json:"face_id,omitempty"`
}

// Timestamps on activity records are kept as the raw strings the sources
// carry; parsing happens at normalization time so that a bad value drops
// one record instead of failing a query.

// CardSwipe is a physical access event, linked by card_id.
type CardSwipe struct {
	CardID     string `json:"card_id"`
	Timestamp  string `json:"timestamp"`
	LocationID string `json:"location_id"`
}

// LabBooking is a reserved lab slot, linked by entity_id. Attended holds
// the source flag verbatim; only the literal "YES" counts as attended.
type LabBooking struct {
	EntityID  string `json:"entity_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	RoomID    string `json:"room_id"`
	Attended  string `json:"attended"`
}

// LibraryCheckout is a book checkout, linked by entity_id.
type LibraryCheckout struct {
	EntityID  string `json:"entity_id"`
	Timestamp string `json:"timestamp"`
	BookID    string `json:"book_id"`
}

// WifiLog is a network association event, linked by device_hash.
type WifiLog struct {
	DeviceHash string `json:"device_hash"`
	Timestamp  string `json:"timestamp"`
	APID       string `json:"ap_id"`
}

// Note is a free-text observation, linked by entity_id.
type Note struct {
	EntityID  string `json:"entity_id"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Text      string `json:"text"`
}

// CctvFrame is a face-match sighting, linked by face_id.
type CctvFrame struct {
	FaceID     string `json:"face_id"`
	Timestamp  string `json:"timestamp"`
	LocationID string `json:"location_id"`
}

// Activity groups the per-source result lists. Every list is non-nil,
// possibly empty; order within a list is source-determined.
type Activity struct {
	CardSwipes       []CardSwipe       `json:"cardSwipes"`
	LabBookings      []LabBooking      `json:"labBookings"`
	LibraryCheckouts []LibraryCheckout `json:"libraryCheckouts"`
	WifiLogs         []WifiLog         `json:"wifiLogs"`
	Notes            []Note            `json:"notes"`
	CctvFrames       []CctvFrame       `json:"cctvFrames"`
	Alerts           []alertfeed.Alert `json:"alerts"`
}

// Bundle is the full cross-source result for one entity.
type Bundle struct {
	Profile  Profile  `json:"profile"`
	Activity Activity `json:"activity"`
}

// SearchAudit is one append-only record of a served entity search.
type SearchAudit struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	SearchedAt time.Time `json:"searched_at"`
	EventCount int       `json:"event_count"`
}

// EventCount is the total number of activity records in the bundle,
// alerts included.
func (a Activity) EventCount() int {
	return len(a.CardSwipes) + len(a.LabBookings) + len(a.LibraryCheckouts) +
		len(a.WifiLogs) + len(a.Notes) + len(a.CctvFrames) + len(a.Alerts)
}
