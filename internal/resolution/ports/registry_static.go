package ports

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
)

// StaticRegistry serves mappings from a YAML document, for single-site
// deployments and tests:
//
//	<tenant-id>:
//	  <device-serial>:
//	    "<device-user-id>": <employee-id>
type StaticRegistry struct {
	mappings map[id.TenantID]map[string]map[string]id.EmployeeID
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{mappings: make(map[id.TenantID]map[string]map[string]id.EmployeeID)}
}

// LoadStaticRegistry reads mappings from a YAML file.
func LoadStaticRegistry(path string) (*StaticRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var doc map[string]map[string]map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode registry file: %w", err)
	}

	r := NewStaticRegistry()
	for tenant, devices := range doc {
		tenantID, err := id.ParseTenantID(tenant)
		if err != nil {
			return nil, fmt.Errorf("registry file: %w", err)
		}
		for serial, users := range devices {
			for user, employee := range users {
				employeeID, err := id.ParseEmployeeID(employee)
				if err != nil {
					return nil, fmt.Errorf("registry file %s/%s: %w", serial, user, err)
				}
				r.Map(tenantID, serial, user, employeeID)
			}
		}
	}
	return r, nil
}

// Map registers one mapping. Not safe to call once lookups have started.
func (r *StaticRegistry) Map(tenantID id.TenantID, deviceSerial, deviceUserID string, employeeID id.EmployeeID) {
	devices, ok := r.mappings[tenantID]
	if !ok {
		devices = make(map[string]map[string]id.EmployeeID)
		r.mappings[tenantID] = devices
	}
	users, ok := devices[deviceSerial]
	if !ok {
		users = make(map[string]id.EmployeeID)
		devices[deviceSerial] = users
	}
	users[deviceUserID] = employeeID
}

func (r *StaticRegistry) Lookup(_ context.Context, tenantID id.TenantID, deviceSerial, deviceUserID string) (id.EmployeeID, error) {
	employeeID, ok := r.mappings[tenantID][deviceSerial][deviceUserID]
	if !ok {
		return id.EmployeeID{}, sentinel.ErrNotFound
	}
	return employeeID, nil
}
