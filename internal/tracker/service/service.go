package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"bus-tracker/internal/general/contracts"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/tracker/domain"
	"bus-tracker/internal/tracker/predict"
	"bus-tracker/internal/tracker/registry"
	"bus-tracker/internal/tracker/session"
	"bus-tracker/internal/tracker/store"
)

// Mirror republishes accepted location updates and driver lifecycle events to
// an external broker for out-of-process consumers. Best-effort: failures are
// logged, never surfaced to the driver.
type Mirror interface {
	PublishLocation(ctx context.Context, sample domain.VehicleLocationSample) error
	PublishDriverEvent(ctx context.Context, event, vehicleID string) error
}

// Archive persists accepted samples for the prediction engine's history
// heuristics. Best-effort as well.
type Archive interface {
	Save(ctx context.Context, sample domain.VehicleLocationSample) error
}

// TrackerService orchestrates the registry, location store, fan-out and
// prediction engine behind the wire protocol.
type TrackerService struct {
	log     *logger.Logger
	reg     *registry.Registry
	store   *store.Store
	engine  *predict.Engine
	mirror  Mirror
	archive Archive
	now     func() time.Time
}

func New(log *logger.Logger, reg *registry.Registry, st *store.Store, engine *predict.Engine) *TrackerService {
	return &TrackerService{
		log:    log,
		reg:    reg,
		store:  st,
		engine: engine,
		now:    time.Now,
	}
}

// WithMirror attaches an optional broker mirror.
func (s *TrackerService) WithMirror(m Mirror) *TrackerService {
	s.mirror = m
	return s
}

// WithArchive attaches an optional location history archive.
func (s *TrackerService) WithArchive(a Archive) *TrackerService {
	s.archive = a
	return s
}

// Register binds a role and identity to the session, emits driver_connected
// to riders for a new driver, and syncs a new rider with the current vehicle
// snapshot.
func (s *TrackerService) Register(ctx context.Context, sess *session.Session, role domain.Role, identity string) error {
	already := sess.Role() == role && sess.Identity() == identity

	if err := s.reg.Register(sess, role, identity); err != nil {
		return err
	}

	s.log.Info(ctx, "session_registered", "Session registered", map[string]any{
		"session_id": sess.ID(), "role": role.String(), "identity": identity,
	})

	if err := sess.Enqueue(contracts.RegistrationConfirmed{
		Type:     contracts.TypeRegistrationConfirmed,
		UserType: string(role),
		Identity: identity,
	}); err != nil {
		s.Disconnect(ctx, sess)
		return domain.ErrTransportFailure
	}

	switch role {
	case domain.RoleDriver:
		if !already {
			s.broadcast(ctx, contracts.DriverEvent{Type: contracts.TypeDriverConnected, BusID: identity})
			if s.mirror != nil {
				if err := s.mirror.PublishDriverEvent(ctx, contracts.TypeDriverConnected, identity); err != nil {
					s.log.Error(ctx, "mirror_driver_event_failed", "Failed to mirror driver_connected", err, map[string]any{"bus_id": identity})
				}
			}
		}
	case domain.RoleRider:
		if err := sess.Enqueue(s.initialState()); err != nil {
			s.Disconnect(ctx, sess)
			return domain.ErrTransportFailure
		}
	}

	return nil
}

// Disconnect removes the session from every structure it appears in,
// synchronously and idempotently. A driver's vehicle entry is dropped and
// riders are told.
func (s *TrackerService) Disconnect(ctx context.Context, sess *session.Session) {
	role, identity, existed := s.reg.Unregister(sess)
	if !existed {
		return
	}

	s.log.Info(ctx, "session_removed", "Session removed", map[string]any{
		"session_id": sess.ID(), "role": role.String(), "identity": identity,
	})

	if role == domain.RoleDriver {
		s.store.Remove(identity)
		s.broadcast(ctx, contracts.DriverEvent{Type: contracts.TypeDriverDisconnected, BusID: identity})
		if s.mirror != nil {
			if err := s.mirror.PublishDriverEvent(ctx, contracts.TypeDriverDisconnected, identity); err != nil {
				s.log.Error(ctx, "mirror_driver_event_failed", "Failed to mirror driver_disconnected", err, map[string]any{"bus_id": identity})
			}
		}
	}
}

// Touch refreshes session liveness; called for every inbound frame.
func (s *TrackerService) Touch(sess *session.Session) {
	s.reg.Touch(sess)
}

// UpdateLocation validates and stores a driver's sample, then fans it out to
// every rider. ErrStaleUpdate means the sample was dropped from storage but
// should still be acknowledged to the sender.
func (s *TrackerService) UpdateLocation(ctx context.Context, sess *session.Session, sample domain.VehicleLocationSample) error {
	if sess.Role() != domain.RoleDriver || sess.Identity() != sample.VehicleID {
		return domain.ErrUnauthorized
	}

	if err := s.store.Update(sample); err != nil {
		if errors.Is(err, domain.ErrStaleUpdate) {
			s.log.Debug(ctx, "location_update_stale", "Out-of-order sample dropped", map[string]any{
				"bus_id": sample.VehicleID, "timestamp": sample.Timestamp.UnixMilli(),
			})
		}
		return err
	}

	s.broadcast(ctx, contracts.NewBusLocation(sample))

	if s.archive != nil {
		go func() {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			defer cancel()
			if err := s.archive.Save(actx, sample); err != nil {
				s.log.Error(actx, "location_archive_failed", "Failed to archive location sample", err, map[string]any{"bus_id": sample.VehicleID})
			}
		}()
	}
	if s.mirror != nil {
		if err := s.mirror.PublishLocation(ctx, sample); err != nil {
			s.log.Error(ctx, "mirror_location_failed", "Failed to mirror location update", err, map[string]any{"bus_id": sample.VehicleID})
		}
	}

	return nil
}

// Predictions estimates arrival for every known vehicle against the
// configured destination, ordered by vehicle id for determinism.
func (s *TrackerService) Predictions(ctx context.Context) []domain.PredictionResult {
	snapshot := s.store.Snapshot()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	out := make([]domain.PredictionResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.engine.Estimate(snapshot[id], now))
	}
	return out
}

// SweepStale unregisters sessions that have shown no liveness since cutoff.
func (s *TrackerService) SweepStale(ctx context.Context, maxAge time.Duration) {
	for _, sess := range s.reg.Stale(s.now().Add(-maxAge)) {
		s.log.Info(ctx, "session_stale", "Removing stale session", map[string]any{
			"session_id": sess.ID(), "identity": sess.Identity(),
		})
		s.Disconnect(ctx, sess)
	}
}

// broadcast delivers event to every rider session. A full queue or dead
// session counts as that rider's disconnect and never affects the others.
func (s *TrackerService) broadcast(ctx context.Context, event any) {
	for _, rider := range s.reg.SessionsByRole(domain.RoleRider) {
		if err := rider.Enqueue(event); err != nil {
			s.log.Error(ctx, "broadcast_send_failed", "Dropping rider that cannot keep up", err, map[string]any{
				"session_id": rider.ID(), "identity": rider.Identity(),
			})
			s.Disconnect(ctx, rider)
		}
	}
}

func (s *TrackerService) initialState() contracts.InitialState {
	snapshot := s.store.Snapshot()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	locations := make([]contracts.BusLocation, 0, len(ids))
	for _, id := range ids {
		locations = append(locations, contracts.NewBusLocation(snapshot[id]))
	}
	return contracts.InitialState{Type: contracts.TypeInitialState, Locations: locations}
}
