package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/glennswest/fixgw/fix"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

type sessionStatus struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Role         string `json:"role"`
	SenderCompID string `json:"senderCompID"`
	TargetCompID string `json:"targetCompID"`
	Connected    bool   `json:"connected"`
	InState      string `json:"inState"`
	OutState     string `json:"outState"`
	NextInSeq    uint32 `json:"nextInSeq"`
	NextOutSeq   uint32 `json:"nextOutSeq"`
	LastError    string `json:"lastError,omitempty"`
}

// entryView is the subset of session.Entry the admin API renders.
type entryView struct {
	Host, SenderCompID, TargetCompID, LastError string
	Port                                         int
	Role                                         fix.Role
	Connected                                    bool
	InState                                      fix.InState
	OutState                                     fix.OutState
	NextInSeq, NextOutSeq                        uint32
}

func (s *Server) viewOf(name string) (*entryView, bool) {
	e := s.manager.Get(name)
	if e == nil {
		return nil, false
	}
	return &entryView{
		Host: e.Host, Port: e.Port, Role: e.Role,
		SenderCompID: e.SenderCompID, TargetCompID: e.TargetCompID,
		Connected: e.Connected, LastError: e.LastError,
		InState: e.InState(), OutState: e.OutState(),
		NextInSeq: e.NextInSeq(), NextOutSeq: e.NextOutSeq(),
	}, true
}

func statusOf(name string, e *entryView) sessionStatus {
	st := sessionStatus{
		Name:         name,
		Host:         e.Host,
		Port:         e.Port,
		SenderCompID: e.SenderCompID,
		TargetCompID: e.TargetCompID,
		Connected:    e.Connected,
		InState:      e.InState.String(),
		OutState:     e.OutState.String(),
		NextInSeq:    e.NextInSeq,
		NextOutSeq:   e.NextOutSeq,
		LastError:    e.LastError,
	}
	if e.Role == fix.Initiator {
		st.Role = "initiator"
	} else {
		st.Role = "acceptor"
	}
	return st
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	entries := s.manager.All()
	out := make([]sessionStatus, 0, len(entries))
	for name := range entries {
		if v, ok := s.viewOf(name); ok {
			out = append(out, statusOf(name, v))
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	v, ok := s.viewOf(name)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, statusOf(name, v))
}

func (s *Server) handleSetExpectedSeq(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body struct {
		NextInSeq uint32 `json:"nextInSeq"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.manager.ForceExpectedIncomingSeq(name, body.NextInSeq); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m := s.manager.GetMetrics(name)
	if m == nil {
		http.Error(w, "no metrics for session", http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	logs, err := s.logWriter.ListLogs(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, logs)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path := s.logWriter.GetLogPath(vars["name"], vars["filename"])
	http.ServeFile(w, r, path)
}

func (s *Server) handleRotateLogs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.logWriter.Rotate(name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "rotated"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.registry != nil {
		s.registry.Refresh()
	}
	writeJSON(w, map[string]string{"status": "refreshed"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encoding response: %v", err), http.StatusInternalServerError)
	}
}
