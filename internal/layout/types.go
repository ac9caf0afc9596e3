package layout

import (
	"slices"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Layout is the complete static description of a model railway: every
// object the dispatcher builds at start-up.
//
// Tracks, feedbacks and accessories may appear in any order; references
// between them are resolved by id and checked by Validate.
type Layout struct {
	Tracks      []interlock.TrackConfig     `yaml:"tracks" json:"tracks"`
	Feedbacks   []interlock.FeedbackConfig  `yaml:"feedbacks" json:"feedbacks"`
	Accessories []interlock.AccessoryConfig `yaml:"accessories" json:"accessories"`
	Counters    []interlock.CounterConfig   `yaml:"counters" json:"counters"`
	Clusters    []interlock.ClusterConfig   `yaml:"clusters" json:"clusters"`
	Routes      []interlock.RouteConfig     `yaml:"routes" json:"routes"`
	Locos       []loco.Config               `yaml:"locos" json:"locos"`

	// RouteUsage is runtime data kept by the store, not part of a seed file.
	RouteUsage map[interlock.ObjectID]RouteUsage `yaml:"-" json:"-"`
}

// RouteUsage records when a route was last executed and how often.
type RouteUsage struct {
	LastUsed time.Time `json:"last_used"`
	Counter  uint64    `json:"counter"`
}

// IsEmpty reports whether the layout defines no objects at all.
func (l *Layout) IsEmpty() bool {
	return len(l.Tracks) == 0 &&
		len(l.Feedbacks) == 0 &&
		len(l.Accessories) == 0 &&
		len(l.Counters) == 0 &&
		len(l.Clusters) == 0 &&
		len(l.Routes) == 0 &&
		len(l.Locos) == 0
}

// Stations returns the command station ids referenced by feedbacks,
// accessories and locos, sorted and without duplicates.
func (l *Layout) Stations() []string {
	var out []string
	add := func(id string) {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, f := range l.Feedbacks {
		add(f.ControlID)
	}
	for _, a := range l.Accessories {
		add(a.ControlID)
	}
	for _, lc := range l.Locos {
		add(lc.ControlID)
	}
	slices.Sort(out)
	return out
}
