package replication

import (
	"fmt"
	"strings"
)

// Source is a replication server directory
type Source struct {
	Name    string
	BaseURL string
}

// StateURL returns the URL of the server's latest state
func (s *Source) StateURL() string {
	return s.BaseURL + "/state.txt"
}

// SequenceStateURL returns the URL of the state published with seq
func (s *Source) SequenceStateURL(seq int64) string {
	return fmt.Sprintf("%s/%s.state.txt", s.BaseURL, SequencePath(seq))
}

// DiffURL returns the URL of the change file for seq
func (s *Source) DiffURL(seq int64) string {
	return fmt.Sprintf("%s/%s.osc.gz", s.BaseURL, SequencePath(seq))
}

const planetURL = "https://planet.openstreetmap.org/replication/"

// ParseSource accepts planet-minute, planet-hour, planet-day,
// geofabrik/<region path> or a replication base URL
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch lower {
	case "planet-minute", "minute":
		return &Source{Name: "planet-minute", BaseURL: planetURL + "minute"}, nil
	case "planet-hour", "hour":
		return &Source{Name: "planet-hour", BaseURL: planetURL + "hour"}, nil
	case "planet-day", "day":
		return &Source{Name: "planet-day", BaseURL: planetURL + "day"}, nil
	}

	if region, ok := strings.CutPrefix(lower, "geofabrik/"); ok {
		region = strings.Trim(region, "/")
		if region == "" {
			return nil, fmt.Errorf("geofabrik source needs a region")
		}
		return &Source{
			Name:    "geofabrik/" + region,
			BaseURL: fmt.Sprintf("https://download.geofabrik.de/%s-updates", region),
		}, nil
	}

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return &Source{Name: "custom", BaseURL: strings.TrimSuffix(s, "/")}, nil
	}

	return nil, fmt.Errorf("unknown replication source: %s", s)
}
