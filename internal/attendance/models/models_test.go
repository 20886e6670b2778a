package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func tp(t time.Time) *time.Time { return &t }

func TestRecompute(t *testing.T) {
	shift := &Shift{Start: at(9, 0), End: at(17, 0)}

	t.Run("working excludes closed breaks", func(t *testing.T) {
		s := &Span{
			CheckIn:  at(9, 0),
			CheckOut: tp(at(17, 30)),
			Breaks:   []Break{{Start: at(12, 0), End: tp(at(12, 45))}},
		}
		s.Recompute(nil)
		assert.Equal(t, 7*time.Hour+45*time.Minute, s.Working)
		assert.Equal(t, 45*time.Minute, s.BreakTime)
		assert.Zero(t, s.Overtime)
	})

	t.Run("overtime above the shift length", func(t *testing.T) {
		s := &Span{CheckIn: at(8, 0), CheckOut: tp(at(18, 0))}
		s.Recompute(shift)
		assert.Equal(t, 2*time.Hour, s.Overtime)
		assert.Zero(t, s.LateMinutes)
		assert.Zero(t, s.EarlyMinutes)
	})

	t.Run("explicit overtime threshold", func(t *testing.T) {
		s := &Span{CheckIn: at(9, 0), CheckOut: tp(at(17, 0))}
		s.Recompute(&Shift{Start: at(9, 0), End: at(17, 0), OvertimeAfter: 7 * time.Hour})
		assert.Equal(t, time.Hour, s.Overtime)
	})

	t.Run("late and early minutes", func(t *testing.T) {
		s := &Span{CheckIn: at(9, 17), CheckOut: tp(at(16, 30))}
		s.Recompute(shift)
		assert.Equal(t, 17, s.LateMinutes)
		assert.Equal(t, 30, s.EarlyMinutes)
	})

	t.Run("open span has no working time", func(t *testing.T) {
		s := &Span{CheckIn: at(9, 5)}
		s.Recompute(shift)
		assert.Zero(t, s.Working)
		assert.Equal(t, 5, s.LateMinutes)
	})

	t.Run("running break is not counted", func(t *testing.T) {
		s := &Span{CheckIn: at(9, 0), Breaks: []Break{{Start: at(12, 0)}}}
		assert.Zero(t, s.ClosedBreakTime())
		assert.NotNil(t, s.OpenBreak())
	})
}

func TestCloneIsDeep(t *testing.T) {
	s := &Span{CheckIn: at(9, 0), CheckOut: tp(at(17, 0)), Breaks: []Break{{Start: at(12, 0), End: tp(at(12, 30))}}}
	cp := s.Clone()
	*cp.CheckOut = at(18, 0)
	*cp.Breaks[0].End = at(13, 0)
	assert.Equal(t, at(17, 0), *s.CheckOut)
	assert.Equal(t, at(12, 30), *s.Breaks[0].End)
}

func TestShiftThreshold(t *testing.T) {
	assert.Equal(t, 8*time.Hour, Shift{Start: at(9, 0), End: at(17, 0)}.Threshold())
	assert.Equal(t, 6*time.Hour, Shift{Start: at(9, 0), End: at(17, 0), OvertimeAfter: 6 * time.Hour}.Threshold())
}
