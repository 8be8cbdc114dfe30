package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints a user's most recent history entries for one module.
func (r *Runtime) Show(ctx context.Context, opts ShowOptions) error {
	if opts.UserID == "" {
		return errors.New("user id is required")
	}
	tracker, err := r.Registry.Get(opts.Module)
	if err != nil {
		return err
	}

	entries, err := r.Store.ListRecentHistory(ctx, opts.UserID, tracker.Name(), opts.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.Out, "no history found")
		return nil
	}

	writer := tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (UTC)\tSource\t%s\tLabel\n", seriesName(tracker.Name()))

	for _, e := range entries {
		p, ok := seriesValue(tracker.Name(), e)
		if !ok {
			fmt.Fprintf(writer, "%s\t-\t-\tundecodable entry\n", e.Timestamp.UTC().Format(time.RFC3339))
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\t%.3f\t%s\n",
			p.At.Format(time.RFC3339),
			p.Source,
			p.Value,
			sanitizeInline(p.Label),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
