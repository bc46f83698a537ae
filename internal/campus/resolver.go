package campus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"campustrace/internal/alertfeed"
)

// ErrNotFound reports that no profile exists for the requested entity id.
var ErrNotFound = errors.New("entity not found")

// Source is the queryable store behind the resolver. The Repository
// implements it against Postgres; tests substitute a counting fake.
type Source interface {
	FindProfile(ctx context.Context, entityID string) (*Profile, error)
	CardSwipesByCard(ctx context.Context, cardID string) ([]CardSwipe, error)
	LabBookingsByEntity(ctx context.Context, entityID string) ([]LabBooking, error)
	LibraryCheckoutsByEntity(ctx context.Context, entityID string) ([]LibraryCheckout, error)
	NotesByEntity(ctx context.Context, entityID string) ([]Note, error)
	WifiLogsByDevice(ctx context.Context, deviceHash string) ([]WifiLog, error)
	CctvFramesByFace(ctx context.Context, faceID string) ([]CctvFrame, error)
}

// AlertSource serves the preloaded, read-only alert feed.
type AlertSource interface {
	ForEntity(entityID string) []alertfeed.Alert
}

// Service resolves an entity id into its cross-source activity bundle.
type Service struct {
	src           Source
	alerts        AlertSource
	lookupTimeout time.Duration
}

// NewService creates a resolver. lookupTimeout bounds the fan-out phase of
// each resolve so a hung query cannot hang the request; zero disables the
// bound.
func NewService(src Source, alerts AlertSource, lookupTimeout time.Duration) *Service {
	return &Service{src: src, alerts: alerts, lookupTimeout: lookupTimeout}
}

// Normalize canonicalizes an external entity id for lookup.
func Normalize(entityID string) string {
	return strings.ToUpper(strings.TrimSpace(entityID))
}

// Resolve looks up the profile for entityID, fans out the six per-source
// activity lookups concurrently, attaches matching alerts, and returns the
// assembled bundle. A missing profile returns ErrNotFound before any
// activity query is issued; any lookup failure fails the whole resolve.
//
// Linking-key policy: a lookup whose key is absent on the profile is
// skipped and contributes an empty list. An absent key never matches
// anything; it is not a wildcard.
func (s *Service) Resolve(ctx context.Context, entityID string) (Bundle, error) {
	id := Normalize(entityID)

	profile, err := s.src.FindProfile(ctx, id)
	if err != nil {
		return Bundle{}, fmt.Errorf("profile lookup for %q: %w", id, err)
	}
	if profile == nil {
		return Bundle{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}

	fanCtx := ctx
	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		fanCtx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}

	var act Activity
	g, gctx := errgroup.WithContext(fanCtx)
	g.Go(func() (err error) {
		if key := deref(profile.CardID); key != "" {
			act.CardSwipes, err = s.src.CardSwipesByCard(gctx, key)
		}
		return err
	})
	g.Go(func() (err error) {
		act.LabBookings, err = s.src.LabBookingsByEntity(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		act.LibraryCheckouts, err = s.src.LibraryCheckoutsByEntity(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		act.Notes, err = s.src.NotesByEntity(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		if key := deref(profile.DeviceHash); key != "" {
			act.WifiLogs, err = s.src.WifiLogsByDevice(gctx, key)
		}
		return err
	})
	g.Go(func() (err error) {
		if key := deref(profile.FaceID); key != "" {
			act.CctvFrames, err = s.src.CctvFramesByFace(gctx, key)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, fmt.Errorf("activity lookup for %q: %w", id, err)
	}

	act.Alerts = s.alerts.ForEntity(id)
	fillEmpty(&act)
	return Bundle{Profile: *profile, Activity: act}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fillEmpty replaces nil lists so every bundle carries all seven, even
// when a source matched nothing or a lookup was skipped.
func fillEmpty(a *Activity) {
	if a.CardSwipes == nil {
		a.CardSwipes = []CardSwipe{}
	}
	if a.LabBookings == nil {
		a.LabBookings = []LabBooking{}
	}
	if a.LibraryCheckouts == nil {
		a.LibraryCheckouts = []LibraryCheckout{}
	}
	if a.WifiLogs == nil {
		a.WifiLogs = []WifiLog{}
	}
	if a.Notes == nil {
		a.Notes = []Note{}
	}
	if a.CctvFrames == nil {
		a.CctvFrames = []CctvFrame{}
	}
	if a.Alerts == nil {
		a.Alerts = []alertfeed.Alert{}
	}
}
