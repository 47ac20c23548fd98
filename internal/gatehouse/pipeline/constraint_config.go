package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

type constraintFile struct {
	Areas []struct {
		AreaID      string `yaml:"area_id"`
		TimeWindows []struct {
			Priority int    `yaml:"priority"`
			From     string `yaml:"from"`
			To       string `yaml:"to"`
		} `yaml:"time_windows"`
		Geofences []struct {
			Priority int     `yaml:"priority"`
			Lat      float64 `yaml:"lat"`
			Lon      float64 `yaml:"lon"`
			RadiusM  float64 `yaml:"radius_m"`
		} `yaml:"geofences"`
	} `yaml:"areas"`
}

// LoadConstraints reads area constraints from a YAML file. A missing
// path yields no constraints: areas are unconstrained unless configured.
func LoadConstraints(path string) ([]Constraint, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read constraints file: %w", err)
	}

	var f constraintFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse constraints file: %w", err)
	}

	var out []Constraint
	for _, a := range f.Areas {
		if a.AreaID == "" {
			return nil, fmt.Errorf("constraints file: area with empty area_id")
		}
		for _, w := range a.TimeWindows {
			if _, err := parseClock(w.From); err != nil {
				return nil, fmt.Errorf("area %s: %w", a.AreaID, err)
			}
			if _, err := parseClock(w.To); err != nil {
				return nil, fmt.Errorf("area %s: %w", a.AreaID, err)
			}
			out = append(out, TimeWindowConstraint{
				Area: a.AreaID, Prio: w.Priority, From: w.From, To: w.To,
			})
		}
		for _, g := range a.Geofences {
			if g.RadiusM <= 0 {
				return nil, fmt.Errorf("area %s: geofence radius must be positive", a.AreaID)
			}
			out = append(out, GeofenceConstraint{
				Area: a.AreaID, Prio: g.Priority,
				Center:  types.GeoPoint{Lat: g.Lat, Lon: g.Lon},
				RadiusM: g.RadiusM,
			})
		}
	}
	return out, nil
}
