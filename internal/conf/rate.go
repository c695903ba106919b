package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultRateWindow = time.Hour

const (
	BurstRateType    = "burst"
	IntervalRateType = "interval"
)

// Rate is an events-per-window quota, configured either as a bare number
// (events per hour, interval semantics) or as "events/window" like "5/10m"
// (burst semantics).
type Rate struct {
	Events   float64       `json:"events,omitempty"`
	OverTime time.Duration `json:"over_time,omitempty"`
	typ      string
}

func (r *Rate) GetRateType() string {
	if r.typ == "" {
		return IntervalRateType
	}
	return r.typ
}

// Decode is used by envconfig to parse a rate value from the environment.
func (r *Rate) Decode(value string) error {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		r.typ = IntervalRateType
		r.Events = f
		r.OverTime = defaultRateWindow
		return nil
	}

	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return fmt.Errorf("conf: rate value %q must be a number or events/window", value)
	}

	// 52 bits so the count survives the float64 conversion
	e, err := strconv.ParseUint(parts[0], 10, 52)
	if err != nil {
		return fmt.Errorf("conf: events part of rate value %q is not an integer: %w", value, err)
	}
	d, err := time.ParseDuration(parts[1])
	if err != nil {
		return fmt.Errorf("conf: window part of rate value %q is not a duration: %w", value, err)
	}

	r.typ = BurstRateType
	r.Events = float64(e)
	r.OverTime = d
	return nil
}

func (r *Rate) String() string {
	if r.OverTime == 0 {
		return fmt.Sprintf("%f", r.Events)
	}
	return fmt.Sprintf("%d/%s", uint64(r.Events), r.OverTime.String())
}
