package ports

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"timekeep/internal/attendance/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
)

// ShiftTemplate is a daily shift expressed as UTC wall-clock times.
type ShiftTemplate struct {
	Start         string        `yaml:"start"`
	End           string        `yaml:"end"`
	OvertimeAfter time.Duration `yaml:"overtime_after"`
}

func (t ShiftTemplate) on(date time.Time) (*models.Shift, error) {
	start, err := clockOn(date, t.Start)
	if err != nil {
		return nil, err
	}
	end, err := clockOn(date, t.End)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		// overnight shift
		end = end.AddDate(0, 0, 1)
	}
	return &models.Shift{Start: start, End: end, OvertimeAfter: t.OvertimeAfter}, nil
}

func clockOn(date time.Time, hhmm string) (time.Time, error) {
	c, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid shift time %q: %w", hhmm, err)
	}
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC), nil
}

// StaticShifts serves shift templates from a YAML document:
//
//	<tenant-id>:
//	  default: {start: "09:00", end: "17:00"}
//	  employees:
//	    <employee-id>: {start: "06:00", end: "14:00", overtime_after: 7h}
type StaticShifts struct {
	tenants map[id.TenantID]tenantShifts
}

type tenantShifts struct {
	Default   *ShiftTemplate           `yaml:"default"`
	Employees map[string]ShiftTemplate `yaml:"employees"`
}

func NewStaticShifts() *StaticShifts {
	return &StaticShifts{tenants: make(map[id.TenantID]tenantShifts)}
}

// LoadStaticShifts reads templates from a YAML file.
func LoadStaticShifts(path string) (*StaticShifts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shift file: %w", err)
	}
	var doc map[string]tenantShifts
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode shift file: %w", err)
	}
	s := NewStaticShifts()
	for tenant, shifts := range doc {
		tenantID, err := id.ParseTenantID(tenant)
		if err != nil {
			return nil, fmt.Errorf("shift file: %w", err)
		}
		for employee, tmpl := range shifts.Employees {
			if _, err := id.ParseEmployeeID(employee); err != nil {
				return nil, fmt.Errorf("shift file %s: %w", employee, err)
			}
			if _, err := tmpl.on(time.Now()); err != nil {
				return nil, fmt.Errorf("shift file %s: %w", employee, err)
			}
		}
		if shifts.Default != nil {
			if _, err := shifts.Default.on(time.Now()); err != nil {
				return nil, fmt.Errorf("shift file %s default: %w", tenant, err)
			}
		}
		s.tenants[tenantID] = shifts
	}
	return s, nil
}

// SetDefault sets a tenant-wide template. Not safe once lookups have started.
func (s *StaticShifts) SetDefault(tenantID id.TenantID, tmpl ShiftTemplate) {
	ts := s.tenants[tenantID]
	ts.Default = &tmpl
	s.tenants[tenantID] = ts
}

// Set assigns an employee template. Not safe once lookups have started.
func (s *StaticShifts) Set(tenantID id.TenantID, employeeID id.EmployeeID, tmpl ShiftTemplate) {
	ts := s.tenants[tenantID]
	if ts.Employees == nil {
		ts.Employees = make(map[string]ShiftTemplate)
	}
	ts.Employees[employeeID.String()] = tmpl
	s.tenants[tenantID] = ts
}

func (s *StaticShifts) Lookup(_ context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, error) {
	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if tmpl, ok := ts.Employees[employeeID.String()]; ok {
		return tmpl.on(date)
	}
	if ts.Default != nil {
		return ts.Default.on(date)
	}
	return nil, sentinel.ErrNotFound
}
