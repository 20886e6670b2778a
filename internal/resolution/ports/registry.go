// Package ports holds the device-registry collaborator and its adapters.
package ports

import (
	"context"

	id "timekeep/pkg/domain"
)

// DeviceRegistry maps a device-local user id to the canonical employee.
// An unmapped user is reported as sentinel.ErrNotFound.
type DeviceRegistry interface {
	Lookup(ctx context.Context, tenantID id.TenantID, deviceSerial, deviceUserID string) (id.EmployeeID, error)
}
