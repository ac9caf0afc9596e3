// Package api implements the HTTP REST API and WebSocket server for Rail
// Logic Core.
//
// This package provides:
//   - REST endpoints for tracks, routes, locos, feedbacks and the booster
//   - WebSocket hub relaying dispatcher events to operator consoles
//   - JWT authentication for operators declared in config.yaml
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for deployments outside a closed layout network
//
// # Architecture
//
// The API sits between operator consoles and the dispatcher. Requests call
// dispatcher operations directly; state changes come back through the Hub,
// which the dispatcher uses as its broadcaster:
//
//	console ──REST──► api.Server ──► dispatcher.Manager ──► control bridge
//	console ◄──WS──── api.Hub    ◄── Broadcast(channel, payload)
//
// # WebSocket
//
// Frames are JSON WSMessage values. A client sends subscribe or
// unsubscribe with {"channels": [...]} ("*" for every channel), snapshot
// for the full layout state, or ping. Events carry a hub-wide seq; a gap
// means events were dropped for a slow client and a snapshot resyncs it.
//
// # Security
//
// POST /api/v1/auth/login exchanges operator credentials for a bearer token.
// Read endpoints need any role; loco, route and booster control need
// operator; blocking tracks and simulating sensors need admin. The
// WebSocket is opened with a single-use ticket from POST /auth/ws-ticket,
// passed as ?ticket=, so the token never appears in a URL.
//
// # Errors
//
// Every error response has the shape {"status", "code", "message"}.
// Interlocking refusals (a route already held, a loco not in manual mode)
// are 409 conflict.
package api
