package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/flywheel/internal/hybridlock"
	"github.com/roach88/flywheel/internal/journal"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Metrics bool
}

// StatsResult is the stats command's output.
type StatsResult struct {
	Path    string              `json:"path"`
	Total   int                 `json:"total"`
	Done    int                 `json:"done"`
	Pending int                 `json:"pending"`
	Overdue int                 `json:"overdue"`
	NextID  int64               `json:"next_id"`
	Lock    hybridlock.Stats    `json:"lock"`
	Journal []journal.OpSummary `json:"journal,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show counts, lock statistics and the operation journal",
		Long: `Show entry counts and lock statistics for this invocation.

With a journal configured, also summarizes every recorded store operation
by operation and outcome. --metrics prints the same data in the Prometheus
text exposition format.`,
		Args: noArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics instead")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	sess, err := opts.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	todos, err := sess.store.Load(ctx)
	if err != nil {
		return storeError("failed to load todos", err)
	}

	if opts.Metrics {
		return writeMetrics(cmd.OutOrStdout(), sess)
	}

	now := opts.now()
	result := StatsResult{
		Path:   sess.store.Path(),
		Total:  len(todos),
		NextID: sess.store.NextID(),
		Lock:   sess.store.LockStats(),
	}
	for _, t := range todos {
		if t.Done {
			result.Done++
		} else {
			result.Pending++
		}
		if t.IsOverdue(now) {
			result.Overdue++
		}
	}

	if sess.journal != nil {
		result.Journal, err = sess.journal.Summary(ctx)
		if err != nil {
			return WrapExitError(ExitIO, "failed to read journal", err)
		}
	}

	f := opts.formatter(cmd.OutOrStdout())
	if opts.Format == "json" {
		return f.Success(result)
	}
	return f.Success(formatStats(result))
}

func writeMetrics(w io.Writer, sess *session) error {
	families, err := sess.registry.Gather()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to gather metrics", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return WrapExitError(ExitIO, "failed to write metrics", err)
		}
	}
	return nil
}

func formatStats(r StatsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File:     %s\n", r.Path)
	fmt.Fprintf(&b, "Total:    %d (%d done, %d pending, %d overdue)\n", r.Total, r.Done, r.Pending, r.Overdue)
	fmt.Fprintf(&b, "Next id:  %d\n", r.NextID)
	fmt.Fprintf(&b, "Lock:     %d acquisitions, %d contended, %d timeouts, max wait %s",
		r.Lock.Acquisitions, r.Lock.Contended, r.Lock.Timeouts, r.Lock.MaxWait)
	if len(r.Journal) > 0 {
		b.WriteString("\nJournal:")
		for _, s := range r.Journal {
			fmt.Fprintf(&b, "\n  %-8s %-10s %5d  avg %s  max %s", s.Op, s.Code, s.Count, s.AvgDuration, s.MaxDuration)
		}
	}
	return b.String()
}
