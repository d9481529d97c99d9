package status

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"btmonitor/internal/mirror"
	"btmonitor/internal/protocol"
	"btmonitor/internal/summary"
)

// Controller is the part of the mirror the HTTP API drives.
type Controller interface {
	Snapshot() mirror.Snapshot
	Connect()
	Disconnect()
}

// Audience counts the dashboards attached to the relay.
type Audience interface {
	NumClients() int
}

type Service struct {
	Mirror Controller
	// Relay is optional; without it dashboardClients reads zero.
	Relay Audience
	Log   *zap.Logger
}

func NewService(c Controller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Mirror: c, Log: logger.Named("status")}
}

// Routes registers the API on mux.
func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/snapshot", s.SnapshotHandler)
	mux.HandleFunc("/api/summary", s.SummaryHandler)
	mux.HandleFunc("/api/stats", s.StatsHandler)
	mux.HandleFunc("/api/reconnect", s.ReconnectHandler)
	mux.HandleFunc("/api/disconnect", s.DisconnectHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
}

func (s *Service) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Mirror.Snapshot())
}

// SummaryHandler serves the dashboard view, narrowed by ?type=&state=&search=.
func (s *Service) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	f := summary.Filter{
		Type:   q.Get("type"),
		State:  q.Get("state"),
		Search: q.Get("search"),
	}
	s.writeJSON(w, http.StatusOK, summary.Build(s.Mirror.Snapshot(), f))
}

type statsResponse struct {
	Phase      mirror.Phase         `json:"phase"`
	Seq        uint64               `json:"seq"`
	Server     protocol.ServerStats `json:"server"`
	Counts     summary.MonsterStats `json:"monsters"`
	Player     int                  `json:"players"`
	Events     int                  `json:"events"`
	Dashboards int                  `json:"dashboardClients"`
}

func (s *Service) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.Mirror.Snapshot()
	d := summary.Build(snap, summary.Filter{})
	resp := statsResponse{
		Phase:  snap.Phase,
		Seq:    snap.Seq,
		Server: d.Server,
		Counts: d.Stats,
		Player: len(snap.Players),
		Events: len(snap.Events),
	}
	if s.Relay != nil {
		resp.Dashboards = s.Relay.NumClients()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) ReconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Log.Info("manual reconnect requested", zap.String("remote", r.RemoteAddr))
	s.Mirror.Connect()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Log.Info("manual disconnect requested", zap.String("remote", r.RemoteAddr))
	s.Mirror.Disconnect()
	w.WriteHeader(http.StatusAccepted)
}

// HealthHandler reports 200 while the upstream socket is open and 503 otherwise.
func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	phase := s.Mirror.Snapshot().Phase
	code := http.StatusOK
	if phase != mirror.PhaseConnected {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"phase": phase.String()})
}

func (s *Service) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Debug("write response", zap.Error(err))
	}
}
