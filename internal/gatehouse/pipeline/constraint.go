package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// Constraint is one pluggable area rule. Constraints run in priority
// order (higher first) and only for events in their area; an area with
// no constraints at all passes by default, since most areas have none.
type Constraint interface {
	AreaID() string
	Priority() int

	// Check returns ok=false with a detail string for a policy denial.
	// Errors are reserved for evaluation failures, which abort the
	// pipeline as internal failures.
	Check(ctx context.Context, ev types.AccessEvent) (ok bool, detail string, err error)
}

// TimeWindowConstraint permits passage only inside a daily wall-clock
// window. Windows may wrap midnight (from 22:00 to 06:00).
type TimeWindowConstraint struct {
	Area string
	Prio int
	From string // "HH:MM"
	To   string // "HH:MM"
}

func (c TimeWindowConstraint) AreaID() string { return c.Area }
func (c TimeWindowConstraint) Priority() int  { return c.Prio }

func (c TimeWindowConstraint) Check(_ context.Context, ev types.AccessEvent) (bool, string, error) {
	from, err := parseClock(c.From)
	if err != nil {
		return false, "", fmt.Errorf("time window %s: %w", c.Area, err)
	}
	to, err := parseClock(c.To)
	if err != nil {
		return false, "", fmt.Errorf("time window %s: %w", c.Area, err)
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	now := at.Hour()*60 + at.Minute()

	var inside bool
	if from <= to {
		inside = now >= from && now < to
	} else {
		// wraps midnight
		inside = now >= from || now < to
	}
	if !inside {
		return false, fmt.Sprintf("outside time window %s-%s", c.From, c.To), nil
	}
	return true, "", nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// GeofenceConstraint permits passage only when the event carries a
// location within a circular fence. An event with no location is denied:
// a configured fence cannot be verified without one. Polygon fences are
// a possible extension behind the same interface.
type GeofenceConstraint struct {
	Area    string
	Prio    int
	Center  types.GeoPoint
	RadiusM float64
}

func (c GeofenceConstraint) AreaID() string { return c.Area }
func (c GeofenceConstraint) Priority() int  { return c.Prio }

func (c GeofenceConstraint) Check(_ context.Context, ev types.AccessEvent) (bool, string, error) {
	if ev.Location == nil {
		return false, "no location reported for geofenced area", nil
	}
	d := haversineM(c.Center, *ev.Location)
	if d > c.RadiusM {
		return false, fmt.Sprintf("location %.0fm outside fence radius %.0fm", d, c.RadiusM), nil
	}
	return true, "", nil
}

const earthRadiusM = 6_371_000

func haversineM(a, b types.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
