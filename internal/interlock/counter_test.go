package interlock

import (
	"errors"
	"testing"
)

func TestCounter_Bounds(t *testing.T) {
	c := NewCounter(CounterConfig{ID: 1, Min: 0, Max: 2})

	for i := 0; i < 2; i++ {
		if err := c.Count(CounterIncrement); err != nil {
			t.Fatalf("Count(inc) #%d error = %v", i+1, err)
		}
	}
	if c.Check(CounterIncrement) {
		t.Error("Check(inc) at max = true, want false")
	}
	if err := c.Count(CounterIncrement); !errors.Is(err, ErrCounterLimit) {
		t.Errorf("Count(inc) at max error = %v, want ErrCounterLimit", err)
	}
	if got := c.Value(); got != 2 {
		t.Errorf("Value() = %d, want 2", got)
	}

	for i := 0; i < 2; i++ {
		if err := c.Count(CounterDecrement); err != nil {
			t.Fatalf("Count(dec) #%d error = %v", i+1, err)
		}
	}
	if err := c.Count(CounterDecrement); !errors.Is(err, ErrCounterLimit) {
		t.Errorf("Count(dec) at min error = %v, want ErrCounterLimit", err)
	}
}
