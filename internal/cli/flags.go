package cli

import (
	"fmt"
	"time"
)

// parseTimeFlag parses an optional RFC3339 flag value; empty yields nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	t = t.UTC()
	return &t, nil
}

// requireWindow parses a mandatory --from/--to pair and checks their order.
func requireWindow(fromValue, toValue string) (time.Time, time.Time, error) {
	if fromValue == "" || toValue == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from and --to must be provided")
	}
	from, err := parseTimeFlag("from", fromValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeFlag("to", toValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.Before(*to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return *from, *to, nil
}
