package rpcserver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabd_connections_total",
		Help: "Current number of non-admin connections held by the store",
	})
	registeredProjectsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabd_projects_registered",
		Help: "Current number of registered projects",
	})
	activeProjectsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabd_projects_active",
		Help: "Current number of projects with activity inside the active window",
	})
	sharedProjectsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabd_projects_shared",
		Help: "Current number of active projects with at least one guest",
	})
	roomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabd_rooms_total",
		Help: "Current number of open rooms",
	})
)

func init() {
	prometheus.MustRegister(connectionsGauge)
	prometheus.MustRegister(registeredProjectsGauge)
	prometheus.MustRegister(activeProjectsGauge)
	prometheus.MustRegister(sharedProjectsGauge)
	prometheus.MustRegister(roomsGauge)
}

// runMetricsLoop samples the store on an interval and publishes it to the
// collabd_* gauges until ctx is cancelled. session.Store isn't safe for
// concurrent reads, so every sample goes through the same dispatch
// goroutine every other store mutation uses (Server.Metrics -> withStore).
func (s *Server) runMetricsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			m := s.Metrics(now)
			connectionsGauge.Set(float64(m.Connections))
			registeredProjectsGauge.Set(float64(m.RegisteredProjects))
			activeProjectsGauge.Set(float64(m.ActiveProjects))
			sharedProjectsGauge.Set(float64(m.SharedProjects))
			roomsGauge.Set(float64(m.Rooms))
		}
	}
}
