package ports

import (
	"context"
	"fmt"
	"time"

	"timekeep/internal/attendance/models"
	"timekeep/internal/platform/upstream"
	id "timekeep/pkg/domain"
)

// HTTPShifts queries the scheduling service.
type HTTPShifts struct {
	client *upstream.Client
}

func NewHTTPShifts(client *upstream.Client) *HTTPShifts {
	return &HTTPShifts{client: client}
}

type shiftResponse struct {
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	OvertimeAfterMinutes int       `json:"overtime_after_minutes"`
}

func (s *HTTPShifts) Lookup(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, error) {
	path := fmt.Sprintf("/v1/tenants/%s/employees/%s/shifts/%s", tenantID, employeeID, date.Format(time.DateOnly))

	var resp shiftResponse
	if err := s.client.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Start.IsZero() || !resp.End.After(resp.Start) {
		return nil, &upstream.Error{
			Category: upstream.CategoryBadData,
			Service:  "shift",
			Message:  "shift window is empty or inverted",
		}
	}
	return &models.Shift{
		Start:         resp.Start,
		End:           resp.End,
		OvertimeAfter: time.Duration(resp.OvertimeAfterMinutes) * time.Minute,
	}, nil
}
