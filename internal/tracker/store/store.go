package store

import (
	"sync"

	"bus-tracker/internal/tracker/domain"
)

// Store holds the most recent location sample per vehicle. Each vehicle has
// its own entry lock so unrelated vehicles never serialize on each other; the
// outer lock only guards the map shape.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	sample domain.VehicleLocationSample
}

func New() *Store {
	return &Store{vehicles: make(map[string]*entry)}
}

// Update stores the sample if its timestamp strictly advances the vehicle's
// recorded state, otherwise returns ErrStaleUpdate and leaves the stored
// sample untouched.
func (st *Store) Update(sample domain.VehicleLocationSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	e, ok := st.vehicles[sample.VehicleID]
	if !ok {
		e = &entry{}
		st.vehicles[sample.VehicleID] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sample.Timestamp.IsZero() && !sample.Timestamp.After(e.sample.Timestamp) {
		return domain.ErrStaleUpdate
	}
	e.sample = sample
	return nil
}

// Get returns the latest sample for a vehicle.
func (st *Store) Get(vehicleID string) (domain.VehicleLocationSample, bool) {
	st.mu.RLock()
	e, ok := st.vehicles[vehicleID]
	st.mu.RUnlock()
	if !ok {
		return domain.VehicleLocationSample{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sample.Timestamp.IsZero() {
		return domain.VehicleLocationSample{}, false
	}
	return e.sample, true
}

// Snapshot copies the current vehicle -> sample mapping, used for a newly
// registered rider's initial state sync.
func (st *Store) Snapshot() map[string]domain.VehicleLocationSample {
	st.mu.RLock()
	entries := make(map[string]*entry, len(st.vehicles))
	for id, e := range st.vehicles {
		entries[id] = e
	}
	st.mu.RUnlock()

	out := make(map[string]domain.VehicleLocationSample, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		if !e.sample.Timestamp.IsZero() {
			out[id] = e.sample
		}
		e.mu.Unlock()
	}
	return out
}

// Remove drops a vehicle's entry, called when its driver disconnects.
func (st *Store) Remove(vehicleID string) {
	st.mu.Lock()
	delete(st.vehicles, vehicleID)
	st.mu.Unlock()
}
