package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// MonitorServer streams the most recent window of one channel to
// plotting clients over WebSocket. It is a read-only consumer of ring
// buffer snapshots and never touches the recording path.
type MonitorServer struct {
	engine   *Engine
	windowS  float64
	upgrader websocket.Upgrader
	done     chan struct{}
}

// monitorFrame is one plot update: timestamps relative to the newest
// sample (0 at the right edge) and the channel values.
type monitorFrame struct {
	Channel    string    `json:"channel"`
	Timestamps []float64 `json:"t"`
	Values     []float32 `json:"y"`
}

// NewMonitorServer creates the monitor with the configured plot window.
func NewMonitorServer(engine *Engine, cfg MonitorConfig) *MonitorServer {
	return &MonitorServer{
		engine:  engine,
		windowS: cfg.WindowS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// HandleMonitor upgrades the connection and streams plot frames at
// 10 Hz until the client disconnects.
func (ms *MonitorServer) HandleMonitor(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = ms.engine.cfg.Stream.ChannelNames[0]
	}
	chIndex := -1
	for i, name := range ms.engine.cfg.Stream.ChannelNames {
		if name == channel {
			chIndex = i
			break
		}
	}
	if chIndex < 0 {
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}

	conn, err := ms.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Monitor upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("Monitor client connected: %s channel=%s", r.RemoteAddr, channel)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			return
		case <-ticker.C:
			frame := ms.buildFrame(channel, chIndex)
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("Monitor client disconnected: %s", r.RemoteAddr)
				return
			}
		}
	}
}

// Close disconnects every monitor client. Called once during server
// shutdown so open connections do not hold up the HTTP drain.
func (ms *MonitorServer) Close() {
	close(ms.done)
}

// buildFrame snapshots the visible window of the focus channel.
func (ms *MonitorServer) buildFrame(channel string, chIndex int) monitorFrame {
	frame := monitorFrame{Channel: channel}
	last, ok := ms.engine.ring.Last()
	if !ok {
		return frame
	}
	window := ms.engine.ring.Snapshot(last-ms.windowS, last)
	frame.Values = window.Channels[chIndex]
	frame.Timestamps = make([]float64, len(window.Timestamps))
	for i, t := range window.Timestamps {
		frame.Timestamps[i] = t - last
	}
	return frame
}
