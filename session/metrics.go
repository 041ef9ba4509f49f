package session

import "time"

// activeProjectWindow is the lookback window for "active" in Metrics. A
// collaborator's last_activity must be strictly after now-window to count.
const activeProjectWindow = 60 * time.Second

// Metrics is a point-in-time snapshot of store-wide counters, used for the
// collabd_* Prometheus gauges.
type Metrics struct {
	Connections        int
	RegisteredProjects int
	ActiveProjects     int
	SharedProjects     int
	Rooms              int
}

// Metrics computes connection and project counters, excluding anything
// hosted or held by an admin connection. now is injected so callers (and
// tests) control the activity window deterministically.
func (s *Store) Metrics(now time.Time) Metrics {
	windowStart := now.Add(-activeProjectWindow)

	connections := 0
	for _, conn := range s.connections {
		if !conn.admin {
			connections++
		}
	}

	var registered, active, shared int
	for _, project := range s.projects {
		hostConn, ok := s.connections[project.HostConnectionID]
		if !ok || hostConn.admin {
			continue
		}
		registered++
		if project.isActiveSince(windowStart) {
			active++
			if len(project.Guests) > 0 {
				shared++
			}
		}
	}

	return Metrics{
		Connections:        connections,
		RegisteredProjects: registered,
		ActiveProjects:     active,
		SharedProjects:     shared,
		Rooms:              len(s.rooms),
	}
}
