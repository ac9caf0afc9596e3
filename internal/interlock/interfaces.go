package interlock

// Dispatcher is the collaborator boundary the interlocking objects call
// into: registry lookups, the booster gate, global settings and fan-out of
// state changes to hardware and UI.
//
// Lookups return nil on a miss. Implementations must not call back into
// the object that invoked them while that object could be holding its
// mutex; the objects in this package drop their own mutex before calling
// LocationReached, CheckFreeingTrack and the Publish methods.
type Dispatcher interface {
	GetTrack(id ObjectID) *Track
	GetRoute(id ObjectID) *Route
	GetFeedback(id ObjectID) *Feedback
	GetCounter(id ObjectID) *Counter
	GetAccessory(id ObjectID) *Accessory
	GetCluster(id ObjectID) *Cluster

	// Booster returns the global power state; SetBooster changes it.
	Booster() BoosterState
	SetBooster(state BoosterState)

	StopOnFeedbackInFreeTrack() bool
	SelectRouteApproach() SelectRouteApproach

	// AccessoryState sends a changed accessory/switch/signal state to the
	// hardware and the UI.
	AccessoryState(a AccessorySnapshot) error

	// Loco fan-out for relations acting on the route's holder. Holders that
	// are not locomotives are ignored.
	LocoBaseFunctionState(loco Handle, nr uint8, on bool)
	LocoBaseOrientation(loco Handle, orientation Orientation)

	// LocationReached tells the locomotive behind loco that one of its
	// feedbacks fired.
	LocationReached(loco Handle, feedback ObjectID)

	// CheckFreeingTrack asks the holder of a track whether the track may
	// be released automatically now that it reads free.
	CheckFreeingTrack(loco Handle, track ObjectID) bool

	TrackPublishState(t TrackSnapshot)
	RoutePublishState(r RouteSnapshot)
	FeedbackPublishState(f FeedbackSnapshot)
}

// Logger defines the logging interface used by the interlocking objects.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func loggerOrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
