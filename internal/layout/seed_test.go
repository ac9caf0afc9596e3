package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

const seedYAML = `
tracks:
  - id: 1
    name: A
  - id: 2
    name: B
    signals: [101]
    select_route_approach: longest_unused
feedbacks:
  - {id: 21, name: B reduced, control_id: cs1, pin: 1, track_id: 2}
  - {id: 22, name: B stop, control_id: cs1, pin: 2, track_id: 2}
accessories:
  - {id: 100, name: W1, kind: switch, control_id: cs1, address: 5}
  - {id: 101, name: S1, kind: signal, control_id: cs1, address: 6}
routes:
  - id: 10
    name: A to B
    from_track: 1
    to_track: 2
    automode: true
    feedback_reduced: 21
    feedback_stop: 22
    relations:
      - {kind: at_lock, type: switch, id: 100, data: 1}
locos:
  - {id: 1, name: BR 218, control_id: cs1, address: 3, track_id: 1}
`

func TestParseSeed(t *testing.T) {
	l, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed() error = %v", err)
	}

	if !l.Tracks[0].AllowLocoTurn {
		t.Error("track default AllowLocoTurn not applied")
	}
	if got := l.Tracks[1].SelectRouteApproach; got != interlock.SelectRouteLongestUnused {
		t.Errorf("SelectRouteApproach = %v, want longest_unused", got)
	}

	route := l.Routes[0]
	if route.Speed != interlock.RouteSpeedTravel {
		t.Errorf("route speed = %v, want travel default", route.Speed)
	}
	if route.DelayMS != uint32(interlock.DefaultRouteDelay.Milliseconds()) {
		t.Errorf("route delay = %d, want default", route.DelayMS)
	}
	wantRel := []interlock.RelationConfig{
		{Kind: interlock.RelationAtLock, ObjectType: interlock.ObjectTypeSwitch, ObjectID: 100, Data: 1},
	}
	if diff := cmp.Diff(wantRel, route.Relations); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}
	if got := l.Accessories[1].Kind; got != interlock.ObjectTypeSignal {
		t.Errorf("accessory kind = %v, want signal", got)
	}
}

func TestParseSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "unknown reference",
			yaml: "tracks: [{id: 1}]\nfeedbacks: [{id: 2, track_id: 7}]\n",
			want: ErrUnknownReference,
		},
		{
			name: "duplicate",
			yaml: "tracks: [{id: 1}, {id: 1}]\n",
			want: ErrDuplicateID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(tt.yaml)); !errors.Is(err, tt.want) {
				t.Errorf("ParseSeed() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseSeed([]byte("trakcs: []\n")); err == nil {
		t.Error("ParseSeed() accepted an unknown key")
	}
	if _, err := ParseSeed([]byte("accessories: [{id: 1, kind: turntable}]\n")); err == nil {
		t.Error("ParseSeed() accepted an unknown accessory kind")
	}
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("writing seed: %v", err)
	}

	l, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile() error = %v", err)
	}
	if len(l.Routes) != 1 || len(l.Locos) != 1 {
		t.Errorf("LoadSeedFile() routes=%d locos=%d, want 1/1", len(l.Routes), len(l.Locos))
	}

	if _, err := LoadSeedFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadSeedFile(missing) error = %v, want ErrNotExist", err)
	}
}
