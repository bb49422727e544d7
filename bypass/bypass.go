// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package bypass implements the Bypass Manager: the lifecycle of a
// BypassRequest (propose/approve/reject/revoke/expire), ADR-backed
// approval requirements drawn from Policy, and bypass-rate metrics with
// alert thresholds.
package bypass

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"maestro/platform/policy"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// RiskLevel is one of the three risk dimensions a bypass request must
// declare.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risks bundles the three required risk assessments.
type Risks struct {
	Technical RiskLevel
	Business  RiskLevel
	Security  RiskLevel
}

// DurationKind is whether a bypass lapses or stands indefinitely.
type DurationKind string

const (
	DurationTemporary DurationKind = "temporary"
	DurationPermanent DurationKind = "permanent"
)

// Status is a BypassRequest's position in its state machine:
// proposed -> approved|rejected; approved -> active (on applied) -> expired|revoked.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// BypassRequest is a single request to bypass a failing gate.
type BypassRequest struct {
	ID                   string
	WorkflowID           string
	Phase                string
	Gate                 string
	CurrentValue         float64
	RequiredThreshold    float64
	Justification        string
	Risks                Risks
	Duration             DurationKind
	Expiration           *time.Time
	RemediationPlan      string
	CompensatingControls []string
	RequestedBy          string
	RequestDate          time.Time
	Status               Status
	Approver             string
	ApprovalDate         *time.Time
	ADRPath              string
	FollowUpTasks        []string
	RejectionReason      string
	RevocationReason     string
}

// CreateParams bundles create_request's arguments.
type CreateParams struct {
	WorkflowID           string
	Phase                string
	Gate                 string
	CurrentValue         float64
	RequiredThreshold    float64
	Justification        string
	Risks                Risks
	Duration             DurationKind
	Expiration           *time.Time
	RemediationPlan      string
	CompensatingControls []string
	RequestedBy          string
}

// Store persists bypass requests. Put upserts by ID; a BypassRequest's
// lifecycle is mutable (unlike contract.Store's append-only versions),
// so every state transition re-saves the full record.
type Store interface {
	Put(req BypassRequest) error
	Get(id string) (BypassRequest, bool, error)
	List() ([]BypassRequest, error)
}

// AuditSink receives one record per state transition. The audit package
// (4.K) satisfies this interface; bypass depends only on the interface
// to avoid importing it.
type AuditSink interface {
	Record(eventType, actor, subject string, payload map[string]any) error
}

// MetricsSnapshot is the result of Manager.Metrics.
type MetricsSnapshot struct {
	Total       int
	Approved    int
	Rejected    int
	Active      int
	Expired     int
	BypassRate  float64
	ByGate      map[string]int
	ByPhase     map[string]int
}

// Manager drives BypassRequest lifecycles against a Policy for
// bypassability/ADR rules and an optional Store for persistence.
type Manager struct {
	mu      sync.Mutex
	pol     *policy.Policy
	store   Store
	audit   AuditSink
	metrics *Metrics
	log     *logger.Logger
	clock   func() time.Time
	newID   func() string
}

// New returns a Manager backed by pol and store.
func New(pol *policy.Policy, store Store) *Manager {
	return &Manager{
		pol:   pol,
		store: store,
		log:   logger.New("bypass"),
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// WithAudit attaches an audit sink.
func (m *Manager) WithAudit(a AuditSink) *Manager { m.audit = a; return m }

// WithMetrics attaches a Metrics collector.
func (m *Manager) WithMetrics(ms *Metrics) *Manager { m.metrics = ms; return m }

// WithClock overrides the time source, for deterministic tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager { m.clock = clock; return m }

// CreateRequest proposes a new bypass. It fails immediately with
// KindBypassRejected if policy marks gate/phase as non-bypassable.
func (m *Manager) CreateRequest(p CreateParams) (BypassRequest, error) {
	if !m.pol.CanBypass(p.Gate, p.Phase) {
		return BypassRequest{}, maerr.Newf(maerr.KindBypassRejected, "gate %q in phase %q is not bypassable", p.Gate, p.Phase)
	}

	req := BypassRequest{
		ID:                   m.newID(),
		WorkflowID:           p.WorkflowID,
		Phase:                p.Phase,
		Gate:                 p.Gate,
		CurrentValue:         p.CurrentValue,
		RequiredThreshold:    p.RequiredThreshold,
		Justification:        p.Justification,
		Risks:                p.Risks,
		Duration:             p.Duration,
		Expiration:           p.Expiration,
		RemediationPlan:      p.RemediationPlan,
		CompensatingControls: p.CompensatingControls,
		RequestedBy:          p.RequestedBy,
		RequestDate:          m.clock(),
		Status:               StatusProposed,
	}

	if err := m.save(req); err != nil {
		return BypassRequest{}, err
	}

	m.recordEvent("bypass_requested", p.RequestedBy, req.ID, map[string]any{
		"workflow_id": req.WorkflowID, "phase": req.Phase, "gate": req.Gate,
	})
	if m.metrics != nil {
		m.metrics.requested(req.Phase, req.Gate)
	}
	return req, nil
}

// Approve transitions a proposed request to active. If policy requires
// an ADR for this gate/phase and adrPath is empty, the request is left
// untouched and KindBypassRejected is returned.
func (m *Manager) Approve(id, approver, adrPath string, expiration *time.Time, controls []string) (BypassRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.get(id)
	if err != nil {
		return BypassRequest{}, err
	}
	if req.Status != StatusProposed {
		return BypassRequest{}, maerr.Newf(maerr.KindValidation, "request %s is not proposed (status %s)", id, req.Status)
	}

	if rule, ok := m.pol.BypassRequirements(req.Gate, req.Phase); ok && rule.RequiresADR && adrPath == "" {
		return BypassRequest{}, maerr.Newf(maerr.KindBypassRejected, "gate %q in phase %q requires an ADR to approve", req.Gate, req.Phase)
	}

	now := m.clock()
	req.Status = StatusApproved
	req.Approver = approver
	req.ApprovalDate = &now
	req.ADRPath = adrPath
	if expiration != nil {
		req.Expiration = expiration
	}
	if len(controls) > 0 {
		req.CompensatingControls = controls
	}

	if err := m.save(req); err != nil {
		return BypassRequest{}, err
	}
	m.recordEvent("bypass_approved", approver, req.ID, map[string]any{"adr_path": adrPath})

	// An approved request is immediately applied: the spec's operation
	// list has no separate "apply" step, so approval and activation are
	// one call, logged as two distinct transitions for audit clarity.
	req.Status = StatusActive
	if err := m.save(req); err != nil {
		return BypassRequest{}, err
	}
	m.recordEvent("bypass_activated", approver, req.ID, nil)
	if m.metrics != nil {
		m.metrics.approved(req.Phase, req.Gate)
	}

	return req, nil
}

// Reject transitions a proposed request to rejected.
func (m *Manager) Reject(id, rejector, reason string) (BypassRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.get(id)
	if err != nil {
		return BypassRequest{}, err
	}
	if req.Status != StatusProposed {
		return BypassRequest{}, maerr.Newf(maerr.KindValidation, "request %s is not proposed (status %s)", id, req.Status)
	}

	req.Status = StatusRejected
	req.Approver = rejector
	req.RejectionReason = reason
	if err := m.save(req); err != nil {
		return BypassRequest{}, err
	}
	m.recordEvent("bypass_rejected", rejector, req.ID, map[string]any{"reason": reason})
	if m.metrics != nil {
		m.metrics.rejected(req.Phase, req.Gate)
	}
	return req, nil
}

// Revoke transitions an active request to revoked.
func (m *Manager) Revoke(id, revoker, reason string) (BypassRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.get(id)
	if err != nil {
		return BypassRequest{}, err
	}
	if req.Status != StatusActive {
		return BypassRequest{}, maerr.Newf(maerr.KindValidation, "request %s is not active (status %s)", id, req.Status)
	}

	req.Status = StatusRevoked
	req.RevocationReason = reason
	if err := m.save(req); err != nil {
		return BypassRequest{}, err
	}
	m.recordEvent("bypass_revoked", revoker, req.ID, map[string]any{"reason": reason})
	return req, nil
}

// ExpireOverdue scans active requests whose expiration has passed,
// transitions them to expired, and emits an alert per transition.
func (m *Manager) ExpireOverdue() ([]BypassRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.List()
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to list bypass requests")
	}

	now := m.clock()
	var expired []BypassRequest
	for _, req := range all {
		if req.Status != StatusActive || req.Expiration == nil || !req.Expiration.Before(now) {
			continue
		}
		req.Status = StatusExpired
		if err := m.save(req); err != nil {
			return expired, err
		}
		m.recordEvent("bypass_expired", "system", req.ID, map[string]any{"expiration": req.Expiration})
		m.log.Warn("", "", "bypass request expired", map[string]any{
			"request_id": req.ID, "workflow_id": req.WorkflowID, "phase": req.Phase, "gate": req.Gate,
		})
		if m.metrics != nil {
			m.metrics.expired(req.Phase, req.Gate)
		}
		expired = append(expired, req)
	}
	return expired, nil
}

// Metrics computes bypass statistics over the last windowDays, counting
// a request in the window by its RequestDate. Bypass rate counts only
// approved (active/expired/revoked — anything that was ever approved)
// bypasses in the numerator, per the documented resolution of the
// "does a rejected request count" open question.
func (m *Manager) Metrics(windowDays int) (MetricsSnapshot, error) {
	all, err := m.store.List()
	if err != nil {
		return MetricsSnapshot{}, maerr.Wrap(maerr.KindInternal, err, "failed to list bypass requests")
	}

	cutoff := m.clock().AddDate(0, 0, -windowDays)
	snap := MetricsSnapshot{ByGate: make(map[string]int), ByPhase: make(map[string]int)}

	for _, req := range all {
		if req.RequestDate.Before(cutoff) {
			continue
		}
		snap.Total++
		snap.ByGate[req.Gate]++
		snap.ByPhase[req.Phase]++

		switch req.Status {
		case StatusRejected:
			snap.Rejected++
		case StatusActive:
			snap.Active++
			snap.Approved++
		case StatusExpired:
			snap.Expired++
			snap.Approved++
		case StatusRevoked:
			snap.Approved++
		}
	}

	if snap.Total > 0 {
		snap.BypassRate = float64(snap.Approved) / float64(snap.Total)
	}

	if snap.BypassRate >= 0.20 {
		m.log.Error("", "", "bypass rate critical", map[string]any{"rate": snap.BypassRate, "window_days": windowDays})
	} else if snap.BypassRate >= m.pol.AlertThreshold() {
		m.log.Warn("", "", "bypass rate above alert threshold", map[string]any{"rate": snap.BypassRate, "window_days": windowDays})
	}

	return snap, nil
}

// List returns every bypass request known to the manager's store, for
// callers (such as the phased autonomous executor) that need to
// cross-reference active bypasses against gate violations via
// ActiveCoverage.
func (m *Manager) List() ([]BypassRequest, error) {
	all, err := m.store.List()
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to list bypass requests")
	}
	return all, nil
}

func (m *Manager) get(id string) (BypassRequest, error) {
	req, ok, err := m.store.Get(id)
	if err != nil {
		return BypassRequest{}, maerr.Wrap(maerr.KindInternal, err, "failed to load bypass request")
	}
	if !ok {
		return BypassRequest{}, maerr.Newf(maerr.KindValidation, "no bypass request with id %q", id)
	}
	return req, nil
}

func (m *Manager) save(req BypassRequest) error {
	if err := m.store.Put(req); err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to persist bypass request")
	}
	return nil
}

func (m *Manager) recordEvent(eventType, actor, subject string, payload map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(eventType, actor, subject, payload); err != nil {
		m.log.Warn("", "", "failed to record audit event", map[string]any{"event_type": eventType, "error": err.Error()})
	}
}

// ActiveCoverage returns the set of gate names in phase that currently
// have an active bypass, for the executor to check exit-gate blocking
// violations against without importing this package into phase.
func ActiveCoverage(requests []BypassRequest, phase string) map[string]bool {
	covered := make(map[string]bool)
	for _, req := range requests {
		if req.Phase == phase && req.Status == StatusActive {
			covered[req.Gate] = true
		}
	}
	return covered
}

// sortedByRequestDate is a small helper kept for stores that need a
// deterministic listing order (e.g. for a JSONL or in-memory dump).
func sortedByRequestDate(reqs []BypassRequest) []BypassRequest {
	out := make([]BypassRequest, len(reqs))
	copy(out, reqs)
	sort.Slice(out, func(i, j int) bool { return out[i].RequestDate.Before(out[j].RequestDate) })
	return out
}
