package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

func (s *Server) handleListLocos(w http.ResponseWriter, _ *http.Request) {
	locos := s.dispatcher.Locos()
	writeJSON(w, http.StatusOK, map[string]any{
		"locos": locos,
		"count": len(locos),
	})
}

func (s *Server) handleGetLoco(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	for _, l := range s.dispatcher.Locos() {
		if l.ID == id {
			writeJSON(w, http.StatusOK, l)
			return
		}
	}
	writeNotFound(w, "loco not found")
}

// handleLocoAutoMode hands a loco to the automaton. The body is optional;
// without one the loco searches routes freely.
func (s *Server) handleLocoAutoMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	mode, err := loco.ParseAutoModeType(req.Mode)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.dispatcher.LocoAutoMode(id, mode); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("loco to automode", "loco_id", id, "mode", req.Mode, "by", operatorName(r))
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "automode"})
}

// handleLocoManual asks the automaton to stop and blocks until the loco is
// in manual mode or the dispatcher gives up.
func (s *Server) handleLocoManual(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.LocoManualMode(r.Context(), id); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("loco to manual mode", "loco_id", id, "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "manual"})
}

func (s *Server) handleLocoRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.LocoRelease(id); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("loco released", "loco_id", id, "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "released"})
}

type setTrackRequest struct {
	Track       interlock.ObjectID `json:"track"`
	Orientation string             `json:"orientation"`
}

// handleSetLocoTrack places a loco on a track, reserving it.
func (s *Server) handleSetLocoTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Track == 0 {
		writeBadRequest(w, "track is required")
		return
	}
	o, err := parseOrientation(req.Orientation)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.dispatcher.SetLocoTrack(id, req.Track, o); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.logger.Info("loco placed", "loco_id", id, "track_id", req.Track, "orientation", o.String(), "by", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "track": req.Track, "orientation": o.String()})
}

func (s *Server) handleLocoSpeed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Speed *int `json:"speed"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Speed == nil || *req.Speed < int(loco.SpeedMin) || *req.Speed > int(loco.SpeedMax) {
		writeBadRequest(w, fmt.Sprintf("speed must be between %d and %d", loco.SpeedMin, loco.SpeedMax))
		return
	}
	speed := loco.Speed(*req.Speed)
	if err := s.dispatcher.LocoSpeed(id, speed); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "speed": speed})
}

func (s *Server) handleLocoFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	nr, err := strconv.ParseUint(chi.URLParam(r, "nr"), 10, 8)
	if err != nil {
		writeBadRequest(w, "function number must be 0-255")
		return
	}
	var req struct {
		On *bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on is required")
		return
	}
	if err := s.dispatcher.LocoFunction(id, uint8(nr), *req.On); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "function": nr, "on": *req.On})
}

// handleLocoTimetable appends an entry to the loco's timetable. Route 0
// falls back to route search; route 65535 stops the loco.
func (s *Server) handleLocoTimetable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req loco.TimetableEntry
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.dispatcher.LocoTimetable(id, req.Route, req.FollowUp); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "route": req.Route, "follow_up": req.FollowUp})
}

func (s *Server) handleClearTimetable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.LocoClearTimetable(id); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOrientation(s string) (interlock.Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return interlock.OrientationLeft, nil
	case "right":
		return interlock.OrientationRight, nil
	default:
		return 0, fmt.Errorf("orientation must be \"left\" or \"right\", got %q", s)
	}
}
