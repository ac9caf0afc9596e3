// Package auth authenticates operators of the layout API.
//
// Operators are declared in config.yaml (security.operators) with an
// Argon2id password hash and one of three roles:
//
//	viewer   → read tracks, routes, locos and the event stream
//	operator → viewer + drive locos, set routes, switch the booster
//	admin    → operator + simulate feedbacks and block tracks
//
// A successful Login returns a short-lived HS256 JWT. The API validates
// it by signature only, so there is no session store.
package auth
