// Package rules holds the anomaly and security rules. Each rule looks at one
// audit entry and reports at most one finding. Window counts, live sessions
// and last-known locations live in injected tenant-scoped stores, so rules
// themselves keep no state.
//
// Threshold rules fire once per episode. The first entry that finds the count
// at or above the threshold latches the episode for the subject and raises a
// signal; every later over-threshold entry only extends the latch. The
// episode ends when no over-threshold entry arrives for a full window, so
// out-of-order delivery and a sustained rate both yield a single signal.
package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"timekeep/internal/anomaly/models"
	auditmodels "timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/resilience"
)

// Rule evaluates one entry. A nil finding means the rule did not trigger.
type Rule interface {
	Type() models.Type
	Evaluate(ctx context.Context, entry auditmodels.Entry) (*models.Finding, error)
}

// WindowStore counts members per key over a sliding window. Record is
// idempotent per member, so re-evaluating an entry does not inflate counts.
//
// Latch opens an episode for key unless one is still open at at, and keeps it
// open until at+hold either way. It reports true only for the call that
// opened the episode, atomically across concurrent callers.
type WindowStore interface {
	Record(ctx context.Context, tenantID id.TenantID, key, member string, at time.Time, window time.Duration) (int, error)
	Latch(ctx context.Context, tenantID id.TenantID, key string, at time.Time, hold time.Duration) (bool, error)
}

// SessionRegistry tracks live sessions per subject.
type SessionRegistry interface {
	Start(ctx context.Context, tenantID id.TenantID, subject, sessionID string, at time.Time, ttl time.Duration) (int, error)
	End(ctx context.Context, tenantID id.TenantID, subject, sessionID string) error
}

// LocationStore keeps the latest geo fix per subject. Swap stores loc when it
// is newer than what is held and returns the fix held before the call.
type LocationStore interface {
	Swap(ctx context.Context, tenantID id.TenantID, subject string, loc models.Location) (*models.Location, error)
}

// Config holds the thresholds.
type Config struct {
	FailedLoginThreshold  int
	FailedLoginWindow     time.Duration
	MassExportRows        int
	ImpossibleTravelKmh   float64
	MaxConcurrentSessions int
	SessionTTL            time.Duration
	BusinessHoursStart    int
	BusinessHoursEnd      int
	BusinessHoursZone     *time.Location
	SalaryChangePercent   float64
	RapidActionThreshold  int
	RapidActionWindow     time.Duration
}

// Deps are the state stores and the policy stack guarding them.
type Deps struct {
	Windows   WindowStore
	Sessions  SessionRegistry
	Locations LocationStore
	Pipeline  *resilience.Pipeline
}

// Security returns the rules fed by the security queue.
func Security(cfg Config, deps Deps) []Rule {
	return []Rule{
		&FailedLogin{threshold: cfg.FailedLoginThreshold, window: cfg.FailedLoginWindow, deps: deps},
		&ConcurrentSessions{max: cfg.MaxConcurrentSessions, ttl: cfg.SessionTTL, deps: deps},
		&ImpossibleTravel{maxKmh: cfg.ImpossibleTravelKmh, deps: deps},
		&AfterHours{start: cfg.BusinessHoursStart, end: cfg.BusinessHoursEnd, zone: zoneOrUTC(cfg.BusinessHoursZone)},
	}
}

// Anomaly returns the rules fed by the anomaly queue.
func Anomaly(cfg Config, deps Deps) []Rule {
	return []Rule{
		&MassExport{rows: cfg.MassExportRows},
		&SalaryChange{percent: cfg.SalaryChangePercent},
		&RapidAction{threshold: cfg.RapidActionThreshold, window: cfg.RapidActionWindow, deps: deps},
	}
}

func zoneOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// windowKey scopes a window counter to one rule and one subject.
func windowKey(t models.Type, subject string) string {
	return string(t) + "|" + subject
}

// opensEpisode reports whether an over-threshold observation for subject
// starts a new episode of rule t.
func opensEpisode(ctx context.Context, deps Deps, t models.Type, entry auditmodels.Entry, subject string, hold time.Duration) (bool, error) {
	return resilience.Do(ctx, deps.Pipeline, func(ctx context.Context) (bool, error) {
		return deps.Windows.Latch(ctx, entry.TenantID, windowKey(t, subject), entry.Timestamp, hold)
	})
}

// isAutomated reports whether the actor is a device or the system rather
// than a person.
func isAutomated(actor string) bool {
	return strings.HasPrefix(actor, "device:") || strings.HasPrefix(actor, "system:")
}

func floatDetail(entry auditmodels.Entry, key string) (float64, bool, error) {
	raw, ok := entry.Details[key]
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("detail %s: %w", key, err)
	}
	return v, true, nil
}
