package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rail-logic-core/internal/auth"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ?ticket=, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.requirePermission(auth.PermLayoutRead))

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/tracks", s.handleListTracks)
			r.Get("/tracks/{id}", s.handleGetTrack)
			r.Get("/routes", s.handleListRoutes)
			r.Get("/routes/{id}", s.handleGetRoute)
			r.Get("/feedbacks", s.handleListFeedbacks)
			r.Get("/accessories", s.handleListAccessories)
			r.Get("/locos", s.handleListLocos)
			r.Get("/locos/{id}", s.handleGetLoco)
			r.Get("/booster", s.handleGetBooster)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRouteOperate))
				r.Post("/routes/{id}/execute", s.handleExecuteRoute)
				r.Post("/routes/{id}/release", s.handleReleaseRoute)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermLocoOperate))
				r.Route("/locos/{id}", func(r chi.Router) {
					r.Post("/automode", s.handleLocoAutoMode)
					r.Post("/manual", s.handleLocoManual)
					r.Post("/release", s.handleLocoRelease)
					r.Put("/track", s.handleSetLocoTrack)
					r.Put("/speed", s.handleLocoSpeed)
					r.Put("/functions/{nr}", s.handleLocoFunction)
					r.Post("/timetable", s.handleLocoTimetable)
					r.Delete("/timetable", s.handleClearTimetable)
				})
			})

			r.With(s.requirePermission(auth.PermBoosterOperate)).Put("/booster", s.handleSetBooster)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermTrackOverride))
				r.Put("/tracks/{id}/blocked", s.handleSetTrackBlocked)
				r.Post("/feedbacks/{id}/state", s.handleSetFeedbackState)
			})
		})
	})

	return r
}

// handleHealth reports the server status and each component. It answers
// 200 even when a component is down so monitoring can read the detail;
// status is "degraded" then.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.components)+1)

	if s.dispatcher.ControlHealthy() {
		components["control"] = "ok"
	} else {
		components["control"] = "unreachable"
		status = "degraded"
	}

	for name, c := range s.components {
		ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"booster":    s.dispatcher.Booster(),
		"websocket":  s.hub.Stats(),
		"components": components,
	})
}

// pathID parses the {id} URL parameter. It writes a 400 and returns false
// if the id is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (interlock.ObjectID, bool) {
	return parseObjectID(w, chi.URLParam(r, "id"))
}

func parseObjectID(w http.ResponseWriter, raw string) (interlock.ObjectID, bool) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		writeBadRequest(w, "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return interlock.ObjectID(n), true
}

// decodeBody decodes the JSON request body into v. It writes a 400 and
// returns false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// operatorName returns the authenticated username for log lines.
func operatorName(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
