package interlock

import (
	"slices"
	"sync"
)

// ClusterConfig describes a group of tracks that must share one
// orientation, such as the two halves of a reversing loop.
type ClusterConfig struct {
	ID          ObjectID    `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Orientation Orientation `yaml:"orientation" json:"orientation"`
}

// Cluster holds the shared orientation of its member tracks. Members join
// through TrackConfig.Cluster.
type Cluster struct {
	cfg        ClusterConfig
	dispatcher Dispatcher

	mu          sync.Mutex
	orientation Orientation
	tracks      []ObjectID
}

// NewCluster creates an empty cluster.
func NewCluster(cfg ClusterConfig, d Dispatcher) *Cluster {
	return &Cluster{cfg: cfg, dispatcher: d, orientation: cfg.Orientation}
}

func (c *Cluster) ID() ObjectID { return c.cfg.ID }

// AddTrack registers a member track.
func (c *Cluster) AddTrack(id ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.tracks, id) {
		c.tracks = append(c.tracks, id)
	}
}

// Orientation returns the cluster orientation.
func (c *Cluster) Orientation() Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation
}

// CanSetOrientation reports whether holder may turn the cluster to o: the
// orientation is already o, or every member track is free or held by holder.
func (c *Cluster) CanSetOrientation(o Orientation, holder Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSetLocked(o, holder)
}

// SetOrientation turns the cluster to o if CanSetOrientation allows it.
func (c *Cluster) SetOrientation(o Orientation, holder Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canSetLocked(o, holder) {
		return false
	}
	c.orientation = o
	return true
}

func (c *Cluster) canSetLocked(o Orientation, holder Handle) bool {
	if c.orientation == o {
		return true
	}
	for _, id := range c.tracks {
		track := c.dispatcher.GetTrack(id)
		if track == nil {
			return false
		}
		state, h := track.LockState()
		if state == LockStateFree || h == holder {
			continue
		}
		return false
	}
	return true
}
