package interlock

import "sync"

// CounterConfig describes a bounded counter used to gate routes, e.g. the
// number of trains allowed into a staging yard.
type CounterConfig struct {
	ID      ObjectID `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Min     int      `yaml:"min" json:"min"`
	Max     int      `yaml:"max" json:"max"`
	Counter int      `yaml:"counter" json:"counter"`
}

// Counter is a bounded integer. Relations check it at reservation time and
// count it at execution time; it is never reserved itself.
type Counter struct {
	id   ObjectID
	name string

	mu      sync.Mutex
	min     int
	max     int
	counter int
}

// NewCounter creates a counter from its configuration.
func NewCounter(cfg CounterConfig) *Counter {
	return &Counter{id: cfg.ID, name: cfg.Name, min: cfg.Min, max: cfg.Max, counter: cfg.Counter}
}

func (c *Counter) ID() ObjectID { return c.id }
func (c *Counter) Name() string { return c.name }

// Check reports whether counting in direction dir would stay in bounds.
func (c *Counter) Check(dir CounterDirection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked(dir)
}

func (c *Counter) checkLocked(dir CounterDirection) bool {
	switch dir {
	case CounterIncrement:
		return c.counter < c.max
	case CounterDecrement:
		return c.counter > c.min
	default:
		return false
	}
}

// Count moves the counter one step in direction dir.
// Returns ErrCounterLimit if the bound is already reached.
func (c *Counter) Count(dir CounterDirection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.checkLocked(dir) {
		return ErrCounterLimit
	}
	if dir == CounterIncrement {
		c.counter++
	} else {
		c.counter--
	}
	return nil
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Config returns the counter's current configuration including its value.
func (c *Counter) Config() CounterConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterConfig{ID: c.id, Name: c.name, Min: c.min, Max: c.max, Counter: c.counter}
}
