// Package ports holds the attendance builder's outbound collaborators.
package ports

import (
	"context"
	"time"

	"timekeep/internal/attendance/models"
	id "timekeep/pkg/domain"
)

// ShiftLookup returns the expected shift for an employee on a work date.
// sentinel.ErrNotFound means no shift is scheduled.
type ShiftLookup interface {
	Lookup(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, error)
}
