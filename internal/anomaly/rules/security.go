package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"timekeep/internal/anomaly/models"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/pkg/platform/resilience"
)

// FailedLogin counts failed logins per account over a sliding window.
type FailedLogin struct {
	threshold int
	window    time.Duration
	deps      Deps
}

func (r *FailedLogin) Type() models.Type { return models.TypeFailedLogin }

func (r *FailedLogin) Evaluate(ctx context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	if entry.Action != auditmodels.ActionLoginFailed || r.threshold <= 0 {
		return nil, nil
	}
	subject := entry.Actor
	if entry.EntityType == auditmodels.EntityAccount && entry.EntityID != "" {
		subject = entry.EntityID
	}
	count, err := resilience.Do(ctx, r.deps.Pipeline, func(ctx context.Context) (int, error) {
		return r.deps.Windows.Record(ctx, entry.TenantID, windowKey(r.Type(), subject), entry.ID.String(), entry.Timestamp, r.window)
	})
	if err != nil {
		return nil, err
	}
	if count < r.threshold {
		return nil, nil
	}
	if opened, err := opensEpisode(ctx, r.deps, r.Type(), entry, subject, r.window); err != nil || !opened {
		return nil, err
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityHigh,
		Subject:   subject,
		Metric:    "failed_logins",
		Threshold: float64(r.threshold),
		Actual:    float64(count),
		Message:   fmt.Sprintf("%d failed logins within %s", count, r.window),
	}, nil
}

// ConcurrentSessions fires when a subject's live session count exceeds the
// maximum, once per episode.
type ConcurrentSessions struct {
	max  int
	ttl  time.Duration
	deps Deps
}

func (r *ConcurrentSessions) Type() models.Type { return models.TypeConcurrentSessions }

func (r *ConcurrentSessions) Evaluate(ctx context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	sessionID := entry.Details[auditmodels.DetailSessionID]
	if sessionID == "" {
		sessionID = entry.EntityID
	}
	switch entry.Action {
	case auditmodels.ActionSessionEnded:
		return nil, r.deps.Pipeline.Execute(ctx, func(ctx context.Context) error {
			return r.deps.Sessions.End(ctx, entry.TenantID, entry.Actor, sessionID)
		})
	case auditmodels.ActionSessionStarted:
	default:
		return nil, nil
	}
	if r.max <= 0 || sessionID == "" {
		return nil, nil
	}

	active, err := resilience.Do(ctx, r.deps.Pipeline, func(ctx context.Context) (int, error) {
		return r.deps.Sessions.Start(ctx, entry.TenantID, entry.Actor, sessionID, entry.Timestamp, r.ttl)
	})
	if err != nil {
		return nil, err
	}
	if active <= r.max {
		return nil, nil
	}
	if opened, err := opensEpisode(ctx, r.deps, r.Type(), entry, entry.Actor, r.ttl); err != nil || !opened {
		return nil, err
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityMedium,
		Subject:   entry.Actor,
		Metric:    "active_sessions",
		Threshold: float64(r.max),
		Actual:    float64(active),
		Message:   fmt.Sprintf("%d concurrent sessions, limit %d", active, r.max),
	}, nil
}

const (
	earthRadiusKm = 6371.0088
	// Fixes closer than this are GPS jitter, not travel.
	minTravelKm = 1.0
	// Elapsed time is floored so near-simultaneous fixes do not divide by zero.
	minTravelElapsed = time.Minute
)

// ImpossibleTravel compares each located entry with the subject's previous
// fix and fires when the implied ground speed is implausible.
type ImpossibleTravel struct {
	maxKmh float64
	deps   Deps
}

func (r *ImpossibleTravel) Type() models.Type { return models.TypeImpossibleTravel }

func (r *ImpossibleTravel) Evaluate(ctx context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	if r.maxKmh <= 0 {
		return nil, nil
	}
	lat, okLat, err := floatDetail(entry, auditmodels.DetailLatitude)
	if err != nil {
		return nil, err
	}
	lon, okLon, err := floatDetail(entry, auditmodels.DetailLongitude)
	if err != nil {
		return nil, err
	}
	if !okLat || !okLon {
		return nil, nil
	}
	subject := entry.Details[auditmodels.DetailEmployeeID]
	if subject == "" {
		subject = entry.Actor
	}

	here := models.Location{Latitude: lat, Longitude: lon, At: entry.Timestamp}
	prev, err := resilience.Do(ctx, r.deps.Pipeline, func(ctx context.Context) (*models.Location, error) {
		return r.deps.Locations.Swap(ctx, entry.TenantID, subject, here)
	})
	if err != nil || prev == nil {
		return nil, err
	}

	km := Distance(*prev, here)
	if km < minTravelKm {
		return nil, nil
	}
	elapsed := here.At.Sub(prev.At)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	elapsed = max(elapsed, minTravelElapsed)
	speed := km / elapsed.Hours()
	if speed <= r.maxKmh {
		return nil, nil
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityHigh,
		Subject:   subject,
		Metric:    "speed_kmh",
		Threshold: r.maxKmh,
		Actual:    math.Round(speed),
		Message:   fmt.Sprintf("%.0f km in %s", km, elapsed.Round(time.Second)),
	}, nil
}

// Distance is the great-circle distance in kilometres.
func Distance(a, b models.Location) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(b.Latitude - a.Latitude)
	dLon := rad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// AfterHours flags human access outside business hours in the configured
// zone. Device punches are exempt; night shifts are not access.
type AfterHours struct {
	start, end int
	zone       *time.Location
}

func (r *AfterHours) Type() models.Type { return models.TypeAfterHours }

func (r *AfterHours) Evaluate(_ context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	switch entry.Action {
	case auditmodels.ActionLoginSucceeded, auditmodels.ActionSessionStarted, auditmodels.ActionDataExported,
		auditmodels.ActionRecordViewed, auditmodels.ActionSalaryChanged, auditmodels.ActionAdminAction:
	default:
		return nil, nil
	}
	if isAutomated(entry.Actor) {
		return nil, nil
	}
	hour := entry.Timestamp.In(r.zone).Hour()
	if hour >= r.start && hour < r.end {
		return nil, nil
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityLow,
		Subject:   entry.Actor,
		Metric:    "local_hour",
		Threshold: float64(r.start),
		Actual:    float64(hour),
		Message:   fmt.Sprintf("%s at %02d:00 %s, business hours %02d:00-%02d:00", entry.Action, hour, r.zone, r.start, r.end),
	}, nil
}
