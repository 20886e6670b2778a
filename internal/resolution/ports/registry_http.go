package ports

import (
	"context"
	"fmt"
	"net/url"

	"timekeep/internal/platform/upstream"
	id "timekeep/pkg/domain"
)

// HTTPRegistry queries the platform's device registry service.
type HTTPRegistry struct {
	client *upstream.Client
}

func NewHTTPRegistry(client *upstream.Client) *HTTPRegistry {
	return &HTTPRegistry{client: client}
}

type registryResponse struct {
	EmployeeID string `json:"employee_id"`
}

func (r *HTTPRegistry) Lookup(ctx context.Context, tenantID id.TenantID, deviceSerial, deviceUserID string) (id.EmployeeID, error) {
	path := fmt.Sprintf("/v1/tenants/%s/devices/%s/users/%s",
		tenantID, url.PathEscape(deviceSerial), url.PathEscape(deviceUserID))

	var resp registryResponse
	if err := r.client.GetJSON(ctx, path, nil, &resp); err != nil {
		return id.EmployeeID{}, err
	}
	employeeID, err := id.ParseEmployeeID(resp.EmployeeID)
	if err != nil {
		return id.EmployeeID{}, &upstream.Error{
			Category:   upstream.CategoryBadData,
			Service:    "registry",
			Message:    "invalid employee id",
			Underlying: err,
		}
	}
	return employeeID, nil
}
