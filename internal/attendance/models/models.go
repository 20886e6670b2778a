// Package models holds attendance spans and the metrics derived from them.
package models

import (
	"time"

	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
)

// Status is a span's place in the per-employee, per-day state machine:
// none → checked_in → completed, or checked_in → incomplete by the sweep.
type Status string

const (
	StatusNone       Status = "none"
	StatusCheckedIn  Status = "checked_in"
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
)

func (s Status) IsOpen() bool { return s == StatusCheckedIn }

// Break is one pause inside a span. End is nil while the break is running.
type Break struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Span is one employee's attendance for one work date.
type Span struct {
	ID            id.SpanID     `json:"id"`
	TenantID      id.TenantID   `json:"tenant_id"`
	EmployeeID    id.EmployeeID `json:"employee_id"`
	Date          time.Time     `json:"date"`
	CheckIn       time.Time     `json:"check_in"`
	CheckOut      *time.Time    `json:"check_out,omitempty"`
	CheckInPunch  id.PunchID    `json:"check_in_punch"`
	CheckOutPunch *id.PunchID   `json:"check_out_punch,omitempty"`
	Breaks        []Break       `json:"breaks"`
	Working       time.Duration `json:"-"`
	BreakTime     time.Duration `json:"-"`
	Overtime      time.Duration `json:"-"`
	LateMinutes   int           `json:"late_minutes"`
	EarlyMinutes  int           `json:"early_minutes"`
	Status        Status        `json:"status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Shift is the expected working window for one employee on one date.
// OvertimeAfter is the working time beyond which overtime accrues; zero
// means the length of the window.
type Shift struct {
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	OvertimeAfter time.Duration `json:"overtime_after"`
}

// Threshold returns the working time after which overtime starts.
func (s Shift) Threshold() time.Duration {
	if s.OvertimeAfter > 0 {
		return s.OvertimeAfter
	}
	return s.End.Sub(s.Start)
}

// OpenBreak returns the running break, if any.
func (s *Span) OpenBreak() *Break {
	for i := range s.Breaks {
		if s.Breaks[i].End == nil {
			return &s.Breaks[i]
		}
	}
	return nil
}

// ClosedBreakTime sums the breaks that have ended.
func (s *Span) ClosedBreakTime() time.Duration {
	var total time.Duration
	for _, b := range s.Breaks {
		if b.End != nil && b.End.After(b.Start) {
			total += b.End.Sub(b.Start)
		}
	}
	return total
}

// Recompute derives the span durations and punctuality from its times. A nil
// shift leaves overtime and punctuality at zero.
func (s *Span) Recompute(shift *Shift) {
	s.Working, s.Overtime = 0, 0
	s.LateMinutes, s.EarlyMinutes = 0, 0

	s.BreakTime = s.ClosedBreakTime()
	if s.CheckOut != nil {
		s.Working = max(0, s.CheckOut.Sub(s.CheckIn)-s.BreakTime)
	}
	if shift == nil {
		return
	}
	if late := s.CheckIn.Sub(shift.Start); late > 0 {
		s.LateMinutes = int(late / time.Minute)
	}
	if s.CheckOut == nil {
		return
	}
	if early := shift.End.Sub(*s.CheckOut); early > 0 {
		s.EarlyMinutes = int(early / time.Minute)
	}
	s.Overtime = max(0, s.Working-shift.Threshold())
}

// Clone returns a deep copy.
func (s *Span) Clone() *Span {
	cp := *s
	if s.CheckOut != nil {
		t := *s.CheckOut
		cp.CheckOut = &t
	}
	if s.CheckOutPunch != nil {
		p := *s.CheckOutPunch
		cp.CheckOutPunch = &p
	}
	cp.Breaks = make([]Break, len(s.Breaks))
	for i, b := range s.Breaks {
		cp.Breaks[i] = Break{Start: b.Start}
		if b.End != nil {
			e := *b.End
			cp.Breaks[i].End = &e
		}
	}
	return &cp
}

// MutationKind says what Apply did to the span.
type MutationKind string

const (
	MutationNone      MutationKind = "none"
	MutationCreated   MutationKind = "created"
	MutationBreak     MutationKind = "break"
	MutationCompleted MutationKind = "completed"
)

// Mutation is the outcome of applying one punch. Span is the state after the
// mutation, or the span the punch was checked against when Kind is none.
type Mutation struct {
	Kind     MutationKind
	Span     *Span
	Warnings []dErrors.Code
}

// Correction replaces a span's times on behalf of an external approval
// workflow. Nil fields keep the current value; a non-nil Breaks replaces all
// breaks.
type Correction struct {
	CheckIn  *time.Time  `json:"check_in,omitempty"`
	CheckOut *time.Time  `json:"check_out,omitempty"`
	Breaks   []Break     `json:"breaks,omitempty"`
	Reason   string      `json:"reason"`
	RefersTo *id.EntryID `json:"refers_to,omitempty"`
}

// LockKey is the per-key exclusion key for one employee's work date.
func LockKey(tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) string {
	return tenantID.String() + ":" + employeeID.String() + ":" + date.Format(time.DateOnly)
}
