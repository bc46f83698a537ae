package campus

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository reads the per-source collections from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindProfile returns the unique profile for entityID, or nil when absent.
func (r *Repository) FindProfile(ctx context.Context, entityID string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_id, name, role, email, department, student_id, card_id, device_hash, face_id
		FROM profiles WHERE entity_id = $1
	`, entityID)
	var p Profile
	if err := row.Scan(&p.EntityID, &p.Name, &p.Role, &p.Email, &p.Department, &p.StudentID, &p.CardID, &p.DeviceHash, &p.FaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CardSwipesByCard returns all swipes recorded for a card.
func (r *Repository) CardSwipesByCard(ctx context.Context, cardID string) ([]CardSwipe, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT card_id, COALESCE(timestamp, ''), COALESCE(location_id, '')
		FROM card_swipes WHERE card_id = $1
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CardSwipe
	for rows.Next() {
		var s CardSwipe
		if err := rows.Scan(&s.CardID, &s.Timestamp, &s.LocationID); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LabBookingsByEntity returns all lab bookings for an entity.
func (r *Repository) LabBookingsByEntity(ctx context.Context, entityID string) ([]LabBooking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, COALESCE(start_time, ''), COALESCE(end_time, ''),
		       COALESCE(room_id, ''), COALESCE("attended (YES/NO)", '')
		FROM lab_bookings WHERE entity_id = $1
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LabBooking
	for rows.Next() {
		var b LabBooking
		if err := rows.Scan(&b.EntityID, &b.StartTime, &b.EndTime, &b.RoomID, &b.Attended); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// LibraryCheckoutsByEntity returns all checkouts for an entity.
func (r *Repository) LibraryCheckoutsByEntity(ctx context.Context, entityID string) ([]LibraryCheckout, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, COALESCE(timestamp, ''), COALESCE(book_id, '')
		FROM library_checkouts WHERE entity_id = $1
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LibraryCheckout
	for rows.Next() {
		var c LibraryCheckout
		if err := rows.Scan(&c.EntityID, &c.Timestamp, &c.BookID); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// NotesByEntity returns all free-text notes for an entity.
func (r *Repository) NotesByEntity(ctx context.Context, entityID string) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, COALESCE(timestamp, ''), COALESCE(category, ''), COALESCE(text, '')
		FROM notes WHERE entity_id = $1
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.EntityID, &n.Timestamp, &n.Category, &n.Text); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// WifiLogsByDevice returns all association events for a device hash.
func (r *Repository) WifiLogsByDevice(ctx context.Context, deviceHash string) ([]WifiLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_hash, COALESCE(timestamp, ''), COALESCE(ap_id, '')
		FROM wifi_logs WHERE device_hash = $1
	`, deviceHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []WifiLog
	for rows.Next() {
		var w WifiLog
		if err := rows.Scan(&w.DeviceHash, &w.Timestamp, &w.APID); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// CctvFramesByFace returns all face-match frames for a face id.
func (r *Repository) CctvFramesByFace(ctx context.Context, faceID string) ([]CctvFrame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT face_id, COALESCE(timestamp, ''), COALESCE(location_id, '')
		FROM cctv_frames WHERE face_id = $1
	`, faceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CctvFrame
	for rows.Next() {
		var f CctvFrame
		if err := rows.Scan(&f.FaceID, &f.Timestamp, &f.LocationID); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// InsertSearchAudit appends one audit row.
func (r *Repository) InsertSearchAudit(ctx context.Context, rec SearchAudit) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SearchedAt.IsZero() {
		rec.SearchedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO search_audit (id, entity_id, searched_at, event_count)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.EntityID, rec.SearchedAt, rec.EventCount)
	return err
}
