package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	attendancemodels "timekeep/internal/attendance/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/requestcontext"
)

// sweeper closes spans nobody checked out of.
type sweeper interface {
	SweepIncomplete(ctx context.Context, tenantID id.TenantID, date time.Time) ([]*attendancemodels.Span, error)
}

type sweepOptions struct {
	Tenant string
	Date   string
}

// SweepResult is the sweep command's output.
type SweepResult struct {
	Date   string                   `json:"date"`
	Swept  []*attendancemodels.Span `json:"swept"`
	Errors []string                 `json:"errors,omitempty"`
}

// NewSweepCommand creates the end-of-day sweep command, meant to run from a
// scheduler once the working day is over.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark spans still checked in on or before a date as incomplete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, date, err := opts.parse(time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			cfg, logger, err := rootOpts.load(cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "config", err)
			}
			if cfg.Postgres.DSN == "" {
				return NewExitError(ExitCommandError, "DATABASE_URL is required to sweep attendance")
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "startup", err)
			}
			defer a.close()
			// sweep audit entries still go through analysis and notification
			defer a.drain()

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return runSweep(cmd.Context(), a.builder, tenantID, date, formatter)
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "work date YYYY-MM-DD (defaults to yesterday, UTC)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (o *sweepOptions) parse(now time.Time) (id.TenantID, time.Time, error) {
	tenantID, err := id.ParseTenantID(o.Tenant)
	if err != nil {
		return id.TenantID{}, time.Time{}, fmt.Errorf("--tenant: %w", err)
	}
	if o.Date == "" {
		y, m, d := now.UTC().AddDate(0, 0, -1).Date()
		return tenantID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(time.DateOnly, o.Date)
	if err != nil {
		return id.TenantID{}, time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return tenantID, date, nil
}

// runSweep reports partial progress: spans swept before a failure are still
// listed, and the command exits 1.
func runSweep(ctx context.Context, s sweeper, tenantID id.TenantID, date time.Time, f *OutputFormatter) error {
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithActor(ctx, "system:sweep")

	swept, err := s.SweepIncomplete(ctx, tenantID, date)
	result := SweepResult{Date: date.Format(time.DateOnly), Swept: swept}
	if result.Swept == nil {
		result.Swept = []*attendancemodels.Span{}
	}
	if err != nil {
		result.Errors = splitErrors(err)
	}
	if werr := f.Write(result, func(w io.Writer) {
		fmt.Fprintf(w, "swept %d spans for %s\n", len(result.Swept), result.Date)
		for _, sp := range result.Swept {
			fmt.Fprintf(w, "  %s employee=%s check_in=%s\n", sp.ID, sp.EmployeeID, sp.CheckIn.Format(time.RFC3339))
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(w, "  error: %s\n", msg)
		}
	}); werr != nil {
		return werr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sweep incomplete", err)
	}
	return nil
}

func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
