package wsx

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Current number of active websocket connections",
	})

	msgReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_received_total",
		Help: "Total number of messages received from clients",
	})

	// Label: status = "success" | "dropped" | "error"
	msgSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "Total number of messages sent to clients",
	}, []string{"status"})

	hubBroadcast = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_hub_broadcast_total",
		Help: "Total number of broadcast events processed by hub",
	})

	// Label: target = "peer" | "user"
	hubSend = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_hub_send_total",
		Help: "Total number of addressed sends processed by hub",
	}, []string{"target"})

	hubKick = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_hub_kick_total",
		Help: "Total number of forced disconnects issued through the hub",
	})
)

func init() {
	prometheus.MustRegister(connActive)
	prometheus.MustRegister(msgReceived)
	prometheus.MustRegister(msgSent)
	prometheus.MustRegister(hubBroadcast)
	prometheus.MustRegister(hubSend)
	prometheus.MustRegister(hubKick)
}
