package api

import (
	"net/http"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// handleListTracks returns every track with its live state.
func (s *Server) handleListTracks(w http.ResponseWriter, _ *http.Request) {
	tracks := s.dispatcher.Tracks()
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": tracks,
		"count":  len(tracks),
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	for _, t := range s.dispatcher.Tracks() {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeNotFound(w, "track not found")
}

type setBlockedRequest struct {
	Blocked *bool `json:"blocked"`
}

// handleSetTrackBlocked takes a track out of (or back into) service.
func (s *Server) handleSetTrackBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setBlockedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Blocked == nil {
		writeBadRequest(w, "blocked is required")
		return
	}
	if err := s.dispatcher.SetTrackBlocked(id, *req.Blocked); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("track blocked state set", "track_id", id, "blocked", *req.Blocked, "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "blocked": *req.Blocked})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := s.dispatcher.Routes()
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	for _, rt := range s.dispatcher.Routes() {
		if rt.ID == id {
			writeJSON(w, http.StatusOK, rt)
			return
		}
	}
	writeNotFound(w, "route not found")
}

// handleExecuteRoute sets a route by hand. The route is reserved, locked
// and executed for the operator; it stays held until released.
func (s *Server) handleExecuteRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.ExecuteRoute(id); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("route executed", "route_id", id, "by", operatorName(r))
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "executed"})
}

func (s *Server) handleReleaseRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.ReleaseRoute(id); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("route released", "route_id", id, "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "released"})
}

func (s *Server) handleListFeedbacks(w http.ResponseWriter, _ *http.Request) {
	feedbacks := s.dispatcher.Feedbacks()
	writeJSON(w, http.StatusOK, map[string]any{
		"feedbacks": feedbacks,
		"count":     len(feedbacks),
	})
}

type setFeedbackRequest struct {
	Occupied *bool `json:"occupied"`
}

// handleSetFeedbackState simulates a sensor report.
func (s *Server) handleSetFeedbackState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Occupied == nil {
		writeBadRequest(w, "occupied is required")
		return
	}
	if err := s.dispatcher.SetFeedbackState(id, *req.Occupied); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("feedback state simulated", "feedback_id", id, "occupied", *req.Occupied, "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "occupied": *req.Occupied})
}

func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	accessories := s.dispatcher.Accessories()
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": accessories,
		"count":       len(accessories),
	})
}

type boosterBody struct {
	State interlock.BoosterState `json:"state"`
}

func (s *Server) handleGetBooster(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, boosterBody{State: s.dispatcher.Booster()})
}

// handleSetBooster switches track power. "stop" halts every train at once.
func (s *Server) handleSetBooster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State *interlock.BoosterState `json:"state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State == nil {
		writeBadRequest(w, "state is required")
		return
	}
	s.dispatcher.SetBooster(*req.State)
	s.logger.Info("booster set", "state", req.State.String(), "by", operatorName(r))
	writeJSON(w, http.StatusOK, boosterBody{State: *req.State})
}
