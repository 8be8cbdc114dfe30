package synthesis

import (
	"fmt"
	"strings"
)

// Trigger names the reason a synthesis was requested.
type Trigger int

const (
	TriggerModuleCalculated Trigger = iota + 1
	TriggerReferenceConfirmed
	TriggerUserRequested
	TriggerSolarStorm
	TriggerPhaseChange
	TriggerExactTransit
)

var triggerNames = map[Trigger]string{
	TriggerModuleCalculated:   "module_calculated",
	TriggerReferenceConfirmed: "reference_confirmed",
	TriggerUserRequested:      "user_requested",
	TriggerSolarStorm:         "solar_storm",
	TriggerPhaseChange:        "phase_change",
	TriggerExactTransit:       "exact_transit",
}

// AllTriggers lists every trigger in declaration order.
var AllTriggers = []Trigger{
	TriggerModuleCalculated,
	TriggerReferenceConfirmed,
	TriggerUserRequested,
	TriggerSolarStorm,
	TriggerPhaseChange,
	TriggerExactTransit,
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// Valid reports whether t is one of the declared triggers. The zero value is not.
func (t Trigger) Valid() bool {
	_, ok := triggerNames[t]
	return ok
}

// Critical triggers force a synthesis even when a valid record exists.
func (t Trigger) Critical() bool {
	switch t {
	case TriggerModuleCalculated, TriggerReferenceConfirmed, TriggerUserRequested:
		return true
	default:
		return false
	}
}

// ParseTrigger resolves a trigger by its wire name.
func ParseTrigger(name string) (Trigger, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for t, n := range triggerNames {
		if n == needle {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown synthesis trigger %q", name)
}

// MarshalText encodes the trigger by name.
func (t Trigger) MarshalText() ([]byte, error) {
	if _, ok := triggerNames[t]; !ok {
		return nil, fmt.Errorf("unknown synthesis trigger %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a trigger name.
func (t *Trigger) UnmarshalText(text []byte) error {
	parsed, err := ParseTrigger(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
