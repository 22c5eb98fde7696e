package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// UnlockPoint is the vested amount at one instant.
type UnlockPoint struct {
	Time     int64 `json:"time"`
	Unlocked int64 `json:"unlocked"`
}

type unlockOptions struct {
	total      int64
	start, end int64
	cliff      int64
	curve      string
	milestones []string
	at         []int64
	steps      int
}

// NewUnlockCommand creates the unlock command.
func NewUnlockCommand(rootOpts *RootOptions) *cobra.Command {
	o := &unlockOptions{}
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Print the unlock schedule of a stream",
		Long: `Print how much of a stream is vested over time.

Without --at the schedule is sampled at --steps evenly spaced points from
start to end. Milestones are given as timestamp:percentage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := o.run()
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts, points, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tUNLOCKED")
				for _, p := range points {
					fmt.Fprintf(tw, "%d\t%d\n", p.Time, p.Unlocked)
				}
				tw.Flush()
			})
		},
	}
	f := cmd.Flags()
	f.Int64Var(&o.total, "total", 0, "total amount streamed")
	f.Int64Var(&o.start, "start", 0, "start time (unix seconds)")
	f.Int64Var(&o.end, "end", 0, "end time (unix seconds)")
	f.Int64Var(&o.cliff, "cliff", -1, "cliff time; negative for none")
	f.StringVar(&o.curve, "curve", "linear", "unlock curve (linear|exponential)")
	f.StringSliceVar(&o.milestones, "milestone", nil, "milestone cap as timestamp:percentage (repeatable)")
	f.Int64SliceVar(&o.at, "at", nil, "times to evaluate (repeatable)")
	f.IntVar(&o.steps, "steps", 10, "number of samples when --at is not given")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (o *unlockOptions) run() ([]UnlockPoint, error) {
	c, err := stream.ParseCurve(o.curve)
	if err != nil {
		return nil, err
	}
	s := curve.Schedule{Total: o.total, Start: o.start, End: o.end, Curve: c}
	if o.cliff >= 0 {
		s.Cliff = &o.cliff
	}
	for _, raw := range o.milestones {
		m, err := parseMilestone(raw)
		if err != nil {
			return nil, err
		}
		s.Milestones = append(s.Milestones, m)
	}
	if err := curve.Validate(s); err != nil {
		return nil, err
	}

	times := o.at
	if len(times) == 0 {
		if o.steps < 1 {
			return nil, fmt.Errorf("steps must be at least 1, got %d", o.steps)
		}
		span := o.end - o.start
		for i := 0; i <= o.steps; i++ {
			times = append(times, o.start+span*int64(i)/int64(o.steps))
		}
	}

	points := make([]UnlockPoint, 0, len(times))
	for _, t := range times {
		u, err := curve.Unlocked(s, t)
		if err != nil {
			return nil, err
		}
		points = append(points, UnlockPoint{Time: t, Unlocked: u})
	}
	return points, nil
}

func parseMilestone(s string) (stream.Milestone, error) {
	ts, pct, ok := strings.Cut(s, ":")
	if !ok {
		return stream.Milestone{}, fmt.Errorf("milestone %q: want timestamp:percentage", s)
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return stream.Milestone{}, fmt.Errorf("milestone %q: %w", s, err)
	}
	p, err := strconv.ParseUint(pct, 10, 32)
	if err != nil {
		return stream.Milestone{}, fmt.Errorf("milestone %q: %w", s, err)
	}
	return stream.Milestone{Timestamp: t, Percentage: uint32(p)}, nil
}
