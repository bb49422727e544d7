// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package contract implements the Contract Registry: per-phase
// deliverable contracts with an append-only, monotonically versioned
// history. A contract is never mutated in place — "updating" a phase's
// contract creates a new version; lookups without an explicit version
// return the latest.
package contract

import (
	"fmt"
	"sort"
	"sync"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// Deliverable is one required output of a phase contract.
type Deliverable struct {
	Name             string
	ArtifactPatterns []string
	MinQualityScore  float64
	Optional         bool
}

// Contract is one immutable version of a phase's requirements.
type Contract struct {
	Phase              string
	Version            int
	Deliverables       []Deliverable
	RequiredMetrics    map[string]float64 // metric name -> threshold
	OwnerPersonaIDs    []string
}

// validate enforces the "every deliverable name is unique within a
// contract" invariant and rejects a deliverable with an empty name.
func (c Contract) validate() error {
	seen := make(map[string]bool, len(c.Deliverables))
	for _, d := range c.Deliverables {
		if d.Name == "" {
			return maerr.New(maerr.KindValidation, "deliverable missing name")
		}
		if seen[d.Name] {
			return maerr.Newf(maerr.KindValidation, "duplicate deliverable name %q in contract", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Store is the persistence backend for contract versions. Registry works
// against any Store, so a relational backend is never mandated by the
// core — only an append-only history is.
type Store interface {
	// Save appends a new contract version. Implementations must reject an
	// attempt to write a version that already exists for phase.
	Save(c Contract) error
	// Load returns every version saved for phase, in any order.
	Load(phase string) ([]Contract, error)
}

// Registry is the in-memory Contract Registry, optionally backed by a
// persistent Store for durability across restarts.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Contract // "phase/version" -> Contract
	latest map[string]int     // phase -> latest version number
	store Store
	log   *logger.Logger
}

// New returns an in-memory Registry with no persistence.
func New() *Registry {
	return &Registry{
		byKey:  make(map[string]Contract),
		latest: make(map[string]int),
		log:    logger.New("contract"),
	}
}

// NewWithStore returns a Registry that persists every Create through
// store. It starts empty; nothing is read from store until Hydrate
// loads a phase.
func NewWithStore(store Store) (*Registry, error) {
	r := New()
	r.store = store

	// There is no enumerable list of phases up front; callers load
	// specific phases on demand via hydrate, keeping startup cheap.
	return r, nil
}

func regKey(phase string, version int) string {
	return fmt.Sprintf("%s/%d", phase, version)
}

// Create adds a new version of phase's contract and returns its version
// number. Version numbers are monotonic per phase, starting at 1.
func (r *Registry) Create(phase string, c Contract) (int, error) {
	if phase == "" {
		return 0, maerr.New(maerr.KindValidation, "phase must not be empty")
	}
	if err := c.validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	version := r.latest[phase] + 1
	c.Phase = phase
	c.Version = version

	if r.store != nil {
		if err := r.store.Save(c); err != nil {
			return 0, maerr.Wrap(maerr.KindInternal, err, "failed to persist contract")
		}
	}

	r.byKey[regKey(phase, version)] = c
	r.latest[phase] = version
	r.log.Info("", "", "contract version created", map[string]any{"phase": phase, "version": version})
	return version, nil
}

// Get returns the contract for phase. If version is 0, the latest
// version is returned. ValidationError if phase/version is unknown.
func (r *Registry) Get(phase string, version int) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == 0 {
		version = r.latest[phase]
	}
	c, ok := r.byKey[regKey(phase, version)]
	if !ok {
		return Contract{}, maerr.Newf(maerr.KindValidation, "no contract for phase %q version %d", phase, version)
	}
	return c, nil
}

// ListVersions returns every version number stored for phase, ascending.
func (r *Registry) ListVersions(phase string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var versions []int
	for _, c := range r.byKey {
		if c.Phase == phase {
			versions = append(versions, c.Version)
		}
	}
	sort.Ints(versions)
	return versions
}

// RequiredDeliverables returns the deliverable list for the latest
// version of phase's contract.
func (r *Registry) RequiredDeliverables(phase string) ([]Deliverable, error) {
	c, err := r.Get(phase, 0)
	if err != nil {
		return nil, err
	}
	return c.Deliverables, nil
}

// Hydrate loads every persisted version of phase from the backing store
// into memory. Call once per phase before first use when NewWithStore
// was used to construct the Registry.
func (r *Registry) Hydrate(phase string) error {
	if r.store == nil {
		return nil
	}
	versions, err := r.store.Load(phase)
	if err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to hydrate contract store")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range versions {
		r.byKey[regKey(c.Phase, c.Version)] = c
		if c.Version > r.latest[c.Phase] {
			r.latest[c.Phase] = c.Version
		}
	}
	return nil
}
