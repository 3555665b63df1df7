package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/repository"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

const maxCodeAttempts = 10

// ErrCodeSpaceExhausted is returned when no free session code was found.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique session code")

type SessionConfig struct {
	TTL    time.Duration
	MetTTL time.Duration
}

// SessionService owns every mutation of a session record. Each operation is
// a read-modify-write against the store; concurrent writers on one code are
// last-write-wins.
type SessionService struct {
	store    repository.SessionStore
	events   EventRecorder
	clock    clock.Clock
	cfg      SessionConfig
	generate func() (string, error)
}

func NewSessionService(
	store repository.SessionStore,
	events EventRecorder,
	clk clock.Clock,
	cfg SessionConfig,
) *SessionService {
	return &SessionService{
		store:    store,
		events:   events,
		clock:    clk,
		cfg:      cfg,
		generate: util.GenerateCode,
	}
}

// CreateSession allocates a fresh code and stores a waiting session for driverName.
func (s *SessionService) CreateSession(ctx context.Context, driverName string) (*model.Session, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		now := s.clock.Now()
		session := &model.Session{
			Code:      code,
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(s.cfg.TTL).UnixMilli(),
			Driver:    model.Participant{Name: driverName},
			Visual: model.Visual{
				Color:   util.ColorFromCode(code),
				Pattern: util.PatternFromCode(code),
			},
			Status: model.SessionStatusWaiting,
		}

		created, err := s.store.Create(ctx, session, s.cfg.TTL)
		if err != nil {
			return nil, err
		}
		if !created {
			log.Debug().Str("code", code).Int("attempt", attempt+1).Msg("session code collision")
			continue
		}

		log.Info().Str("code", code).Msg("session created")
		s.record(func() error { return s.events.SessionCreated(ctx, code, driverName) })
		return session, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// GetSession returns nil when the session is absent or past its expiry.
func (s *SessionService) GetSession(ctx context.Context, code string) (*model.Session, error) {
	session, err := s.store.Get(ctx, code)
	if err != nil || session == nil {
		return nil, err
	}
	if session.ExpiredAt(s.clock.Now()) {
		return nil, nil
	}
	return session, nil
}

// UpdateLocation records a position for role and refreshes the full TTL.
// The passenger's first report moves a waiting session to active. Absent,
// expired and met sessions are left untouched and yield nil.
func (s *SessionService) UpdateLocation(
	ctx context.Context,
	code string,
	role model.Role,
	lat, lon float64,
) (*model.Session, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Status == model.SessionStatusMet {
		return nil, nil
	}

	participant := session.Participant(role)
	if participant == nil {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	now := s.clock.Now()
	participant.Latitude = &lat
	participant.Longitude = &lon
	participant.LastUpdate = now.UnixMilli()

	joined := false
	if role == model.RolePassenger && session.Status == model.SessionStatusWaiting {
		session.Status = model.SessionStatusActive
		joined = true
	}

	session.ExpiresAt = now.Add(s.cfg.TTL).UnixMilli()
	if err := s.store.Put(ctx, session, s.cfg.TTL); err != nil {
		return nil, err
	}

	if joined {
		log.Info().Str("code", code).Msg("passenger joined session")
		s.record(func() error { return s.events.SessionJoined(ctx, code) })
	}
	return session, nil
}

// SetConnected flips the connection flag for role without extending the
// session's lifetime.
func (s *SessionService) SetConnected(
	ctx context.Context,
	code string,
	role model.Role,
	connected bool,
) (*model.Session, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil || session == nil {
		return nil, err
	}

	participant := session.Participant(role)
	if participant == nil {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	participant.Connected = connected

	if err := s.store.Put(ctx, session, session.Remaining(s.clock.Now())); err != nil {
		return nil, err
	}
	return session, nil
}

// MarkAsMet ends the session, keeping it readable for the met retention
// period. Marking an already met session changes nothing.
func (s *SessionService) MarkAsMet(ctx context.Context, code string) (*model.Session, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Status == model.SessionStatusMet {
		return session, nil
	}

	session.Status = model.SessionStatusMet
	session.ExpiresAt = s.clock.Now().Add(s.cfg.MetTTL).UnixMilli()
	if err := s.store.Put(ctx, session, s.cfg.MetTTL); err != nil {
		return nil, err
	}

	log.Info().Str("code", code).Msg("session marked as met")
	s.record(func() error { return s.events.SessionCompleted(ctx, code) })
	return session, nil
}

func (s *SessionService) record(fn func() error) {
	if s.events == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn().Err(err).Msg("failed to record analytics event")
	}
}
