package ports

import (
	"context"
	"time"

	"timekeep/internal/attendance/models"
	"timekeep/internal/platform/rediscache"
	id "timekeep/pkg/domain"
)

// CachedShifts is a read-through cache in front of another lookup.
type CachedShifts struct {
	next  ShiftLookup
	cache *rediscache.Cache[models.Shift]
}

func NewCachedShifts(next ShiftLookup, cache *rediscache.Cache[models.Shift]) *CachedShifts {
	return &CachedShifts{next: next, cache: cache}
}

func (s *CachedShifts) Lookup(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, error) {
	key := tenantID.String() + ":" + employeeID.String() + ":" + date.Format(time.DateOnly)
	if shift, ok := s.cache.Get(ctx, key); ok {
		return &shift, nil
	}
	shift, err := s.next.Lookup(ctx, tenantID, employeeID, date)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, *shift)
	return shift, nil
}
