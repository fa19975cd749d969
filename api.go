package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// APIServer exposes the trigger/label/session control surface over
// HTTP. Trigger calls are rate-limited by the event cooldown, not by
// blocking, so handlers always return promptly.
type APIServer struct {
	engine *Engine
}

// NewAPIServer creates the API bound to an engine.
func NewAPIServer(engine *Engine) *APIServer {
	return &APIServer{engine: engine}
}

// RegisterHandlers attaches all API endpoints to the mux.
func (api *APIServer) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", api.handleStatus)
	mux.HandleFunc("/api/session/start", api.handleSessionStart)
	mux.HandleFunc("/api/session/stop", api.handleSessionStop)
	mux.HandleFunc("/api/label", api.handleLabel)
	mux.HandleFunc("/api/gesture", api.handleGesture)
	mux.HandleFunc("/api/event", api.handleEvent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode API response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleStatus returns the engine snapshot.
func (api *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, api.engine.Status())
}

// handleSessionStart begins a new recording session.
func (api *APIServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := api.engine.StartRecording()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"dir":        session.Dir,
	})
}

// handleSessionStop seals the active session.
func (api *APIServer) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := api.engine.StopRecording(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// labelRequest is the body of label, gesture and event calls.
type labelRequest struct {
	Label string `json:"label"`
}

func readLabel(r *http.Request) (string, bool) {
	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		return "", false
	}
	return req.Label, true
}

// handleLabel sets the persistent label.
func (api *APIServer) handleLabel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	label, ok := readLabel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing label")
		return
	}
	if err := api.engine.SetLabel(label); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"label": label})
}

// handleGesture starts a transient gesture window.
func (api *APIServer) handleGesture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	label, ok := readLabel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing label")
		return
	}
	if err := api.engine.TriggerGesture(label); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"label": label})
}

// handleEvent marks a trigger event. A call inside the cooldown window
// is reported as not recorded, which is an ordinary outcome.
func (api *APIServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	label, ok := readLabel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing label")
		return
	}
	recorded, err := api.engine.MarkEvent(label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}
