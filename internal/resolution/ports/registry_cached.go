package ports

import (
	"context"

	"timekeep/internal/platform/rediscache"
	id "timekeep/pkg/domain"
)

// CachedRegistry is a read-through cache in front of another registry.
// Unmapped users are not cached so a new mapping applies on the next punch.
type CachedRegistry struct {
	next  DeviceRegistry
	cache *rediscache.Cache[id.EmployeeID]
}

func NewCachedRegistry(next DeviceRegistry, cache *rediscache.Cache[id.EmployeeID]) *CachedRegistry {
	return &CachedRegistry{next: next, cache: cache}
}

func (r *CachedRegistry) Lookup(ctx context.Context, tenantID id.TenantID, deviceSerial, deviceUserID string) (id.EmployeeID, error) {
	key := tenantID.String() + ":" + deviceSerial + ":" + deviceUserID
	if employeeID, ok := r.cache.Get(ctx, key); ok {
		return employeeID, nil
	}
	employeeID, err := r.next.Lookup(ctx, tenantID, deviceSerial, deviceUserID)
	if err != nil {
		return id.EmployeeID{}, err
	}
	r.cache.Set(ctx, key, employeeID)
	return employeeID, nil
}
