package layout

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// idSet collects the ids of one object kind and reports duplicates.
type idSet map[interlock.ObjectID]struct{}

func (s idSet) has(id interlock.ObjectID) bool {
	_, ok := s[id]
	return ok
}

// validator accumulates every problem instead of stopping at the first.
type validator struct {
	errs []error
}

func (v *validator) addf(sentinel error, format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

func (v *validator) collect(kind string, ids []interlock.ObjectID) idSet {
	set := make(idSet, len(ids))
	for _, id := range ids {
		if id == 0 {
			v.addf(ErrInvalidLayout, "%s with id 0", kind)
			continue
		}
		if set.has(id) {
			v.addf(ErrDuplicateID, "%s %d", kind, id)
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func (v *validator) ref(set idSet, kind string, id interlock.ObjectID, owner string) {
	if id != 0 && !set.has(id) {
		v.addf(ErrUnknownReference, "%s refers to %s %d", owner, kind, id)
	}
}

func ids[T any](items []T, id func(T) interlock.ObjectID) []interlock.ObjectID {
	out := make([]interlock.ObjectID, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

// Validate checks a layout for internal consistency before it is imported
// or handed to the dispatcher.
//
// It checks:
//   - ids are non-zero and unique per object kind
//   - every reference between objects resolves
//   - automode routes have a stop feedback
//   - sub-route relations do not form a cycle
//
// All problems are reported together, joined with errors.Join.
func Validate(l *Layout) error {
	if l == nil {
		return ErrInvalidLayout
	}
	v := &validator{}

	tracks := v.collect("track", ids(l.Tracks, func(c interlock.TrackConfig) interlock.ObjectID { return c.ID }))
	feedbacks := v.collect("feedback", ids(l.Feedbacks, func(c interlock.FeedbackConfig) interlock.ObjectID { return c.ID }))
	accessories := v.collect("accessory", ids(l.Accessories, func(c interlock.AccessoryConfig) interlock.ObjectID { return c.ID }))
	counters := v.collect("counter", ids(l.Counters, func(c interlock.CounterConfig) interlock.ObjectID { return c.ID }))
	clusters := v.collect("cluster", ids(l.Clusters, func(c interlock.ClusterConfig) interlock.ObjectID { return c.ID }))
	routes := v.collect("route", ids(l.Routes, func(c interlock.RouteConfig) interlock.ObjectID { return c.ID }))
	locos := v.collect("loco", ids(l.Locos, func(c loco.Config) interlock.ObjectID { return c.ID }))

	kinds := make(map[interlock.ObjectID]interlock.ObjectType, len(l.Accessories))
	for _, a := range l.Accessories {
		switch a.Kind {
		case interlock.ObjectTypeAccessory, interlock.ObjectTypeSwitch, interlock.ObjectTypeSignal:
		default:
			v.addf(ErrInvalidLayout, "accessory %d has kind %s", a.ID, a.Kind)
		}
		kinds[a.ID] = a.Kind
	}

	for _, t := range l.Tracks {
		owner := fmt.Sprintf("track %d", t.ID)
		v.ref(clusters, "cluster", t.Cluster, owner)
		for _, s := range t.Signals {
			v.ref(accessories, "signal", s, owner)
			if kind, ok := kinds[s]; ok && kind != interlock.ObjectTypeSignal {
				v.addf(ErrInvalidLayout, "%s lists %s %d as signal", owner, kind, s)
			}
		}
	}

	for _, f := range l.Feedbacks {
		owner := fmt.Sprintf("feedback %d", f.ID)
		v.ref(tracks, "track", f.TrackID, owner)
		v.ref(routes, "route", f.RouteID, owner)
	}

	for _, c := range l.Counters {
		if c.Min > c.Max {
			v.addf(ErrInvalidLayout, "counter %d has min %d above max %d", c.ID, c.Min, c.Max)
		}
	}

	for _, r := range l.Routes {
		v.route(r, tracks, feedbacks, accessories, counters, routes, kinds)
	}

	for _, lc := range l.Locos {
		owner := fmt.Sprintf("loco %d", lc.ID)
		v.ref(tracks, "track", lc.TrackID, owner)
		for _, s := range lc.Slaves {
			v.ref(locos, "loco", s, owner)
			if s == lc.ID {
				v.addf(ErrInvalidLayout, "%s lists itself as slave", owner)
			}
		}
	}

	if cycle := findRouteCycle(l.Routes); len(cycle) > 0 {
		v.addf(ErrRouteCycle, "%v", cycle)
	}

	return errors.Join(v.errs...)
}

func (v *validator) route(r interlock.RouteConfig, tracks, feedbacks, accessories, counters, routes idSet,
	kinds map[interlock.ObjectID]interlock.ObjectType) {
	owner := fmt.Sprintf("route %d", r.ID)

	if r.FromTrack == 0 || r.ToTrack == 0 {
		v.addf(ErrInvalidLayout, "%s needs both a from and a to track", owner)
	}
	v.ref(tracks, "track", r.FromTrack, owner)
	v.ref(tracks, "track", r.ToTrack, owner)
	v.ref(routes, "route", r.FollowUpRoute, owner)
	for _, f := range []interlock.ObjectID{r.FeedbackReduced, r.FeedbackCreep, r.FeedbackStop, r.FeedbackOver} {
		v.ref(feedbacks, "feedback", f, owner)
	}
	if r.Automode && r.FeedbackStop == 0 {
		v.addf(ErrMissingStopFeedback, "%s", owner)
	}
	if r.MaxTrainLength > 0 && r.MinTrainLength > r.MaxTrainLength {
		v.addf(ErrInvalidLayout, "%s has min train length above max", owner)
	}

	for i, rel := range r.Relations {
		relOwner := fmt.Sprintf("%s relation %d", owner, i)
		if _, err := interlock.TargetFor(rel.ObjectType, rel.ObjectID); err != nil {
			v.errs = append(v.errs, fmt.Errorf("%s: %w", relOwner, err))
			continue
		}
		switch rel.ObjectType {
		case interlock.ObjectTypeTrack:
			v.ref(tracks, "track", rel.ObjectID, relOwner)
		case interlock.ObjectTypeRoute:
			v.ref(routes, "route", rel.ObjectID, relOwner)
			if rel.ObjectID == r.ID {
				v.addf(ErrRouteCycle, "%s refers to itself", relOwner)
			}
		case interlock.ObjectTypeCounter:
			v.ref(counters, "counter", rel.ObjectID, relOwner)
		case interlock.ObjectTypeAccessory, interlock.ObjectTypeSwitch, interlock.ObjectTypeSignal:
			v.ref(accessories, rel.ObjectType.String(), rel.ObjectID, relOwner)
			if kind, ok := kinds[rel.ObjectID]; ok && kind != rel.ObjectType {
				v.addf(ErrInvalidLayout, "%s targets %s %d which is a %s", relOwner, rel.ObjectType, rel.ObjectID, kind)
			}
		}
	}
}

// findRouteCycle returns the route ids of one sub-route cycle, or nil.
// Direct self references are reported separately by the route check.
func findRouteCycle(routes []interlock.RouteConfig) []interlock.ObjectID {
	children := make(map[interlock.ObjectID][]interlock.ObjectID, len(routes))
	order := make([]interlock.ObjectID, 0, len(routes))
	for _, r := range routes {
		order = append(order, r.ID)
		for _, rel := range r.Relations {
			if rel.ObjectType == interlock.ObjectTypeRoute && rel.ObjectID != r.ID {
				children[r.ID] = append(children[r.ID], rel.ObjectID)
			}
		}
	}

	const (
		visiting = iota + 1
		done
	)
	state := make(map[interlock.ObjectID]int, len(routes))
	var path []interlock.ObjectID

	var visit func(id interlock.ObjectID) []interlock.ObjectID
	visit = func(id interlock.ObjectID) []interlock.ObjectID {
		switch state[id] {
		case visiting:
			start := slices.Index(path, id)
			return append(slices.Clone(path[start:]), id)
		case done:
			return nil
		}
		state[id] = visiting
		path = append(path, id)
		for _, child := range children[id] {
			if cycle := visit(child); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range order {
		if cycle := visit(id); cycle != nil {
			return cycle
		}
	}
	return nil
}
