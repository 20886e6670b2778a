package models

import "time"

// SpanResponse is the wire form of a span; durations are reported in minutes.
type SpanResponse struct {
	*Span
	WorkingMinutes  int `json:"working_minutes"`
	BreakMinutes    int `json:"break_minutes"`
	OvertimeMinutes int `json:"overtime_minutes"`
}

func NewSpanResponse(s *Span) *SpanResponse {
	return &SpanResponse{
		Span:            s,
		WorkingMinutes:  int(s.Working / time.Minute),
		BreakMinutes:    int(s.BreakTime / time.Minute),
		OvertimeMinutes: int(s.Overtime / time.Minute),
	}
}

// SweepRequest names the work date to close out.
type SweepRequest struct {
	Date string `json:"date"`
}

// SweepResponse lists spans marked incomplete.
type SweepResponse struct {
	Date  string          `json:"date"`
	Count int             `json:"count"`
	Spans []*SpanResponse `json:"spans"`
}
