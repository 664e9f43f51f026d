// Package track follows a single subject's bounding box through a
// frame sequence. A cascade of tracker backends is tried in order at
// start; when none can be constructed or initialized, the cascade
// degrades to a pure region search around the last known box.
package track

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

// FallbackMargin is how far (in pixels, each direction) the search
// region extends past the last known box when the tracker has lost the
// subject or no tracker backend is available.
const FallbackMargin = 50

// ErrUntrackableRegion reports an initial box too small to track after
// clamping to the frame.
var ErrUntrackableRegion = errors.New("track: region too small to track")

// Tracker is a single-object tracker backend. Init seeds it on a frame
// and region; Update advances it one frame and reports whether the
// target was found.
type Tracker interface {
	Init(frame *detect.Frame, box geometry.Box) bool
	Update(frame *detect.Frame) (geometry.Box, bool)
	Close() error
}

// Factory constructs one tracker backend. Construction may fail when
// the backend is not compiled in or its runtime is unavailable; the
// cascade then moves on to the next factory.
type Factory struct {
	Name string
	New  func() (Tracker, error)
}

// State is the cascade's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateTracking
	StateLost
	StateFallbackSearch
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateLost:
		return "lost"
	case StateFallbackSearch:
		return "fallback_search"
	default:
		return "uninitialized"
	}
}

// Cascade drives one subject's track. It is not safe for concurrent
// use; each subject gets its own cascade.
type Cascade struct {
	factories []Factory
	log       *slog.Logger

	active     Tracker
	activeName string
	state      State
	lastBox    geometry.Box
	losses     int
}

// NewCascade builds a cascade over the given factories, tried in
// order. An empty factory list is valid and yields a cascade that goes
// straight to fallback search.
func NewCascade(factories []Factory, log *slog.Logger) *Cascade {
	if log == nil {
		log = slog.Default()
	}
	return &Cascade{factories: factories, log: log}
}

// Start seeds the cascade on the first frame. The box is clamped to
// the frame bounds first; a clamped box smaller than the trackable
// minimum returns ErrUntrackableRegion. When every factory fails, the
// cascade enters fallback search instead of erroring.
func (c *Cascade) Start(frame *detect.Frame, box geometry.Box) error {
	clamped := box.Clamp(frame.Width, frame.Height)
	if !clamped.Trackable() {
		return fmt.Errorf("%w: %dx%d after clamping", ErrUntrackableRegion, clamped.Width(), clamped.Height())
	}
	c.lastBox = clamped
	c.losses = 0

	for _, f := range c.factories {
		tr, err := f.New()
		if err != nil {
			c.log.Warn("tracker backend unavailable", "tracker", f.Name, "error", err)
			continue
		}
		if !tr.Init(frame, clamped) {
			c.log.Warn("tracker failed to initialize", "tracker", f.Name)
			tr.Close()
			continue
		}
		c.active = tr
		c.activeName = f.Name
		c.state = StateTracking
		c.log.Info("tracker initialized", "tracker", f.Name, "region", clamped)
		return nil
	}

	c.state = StateFallbackSearch
	c.log.Warn("no tracker backend available, using region search")
	return nil
}

// Step advances the track by one frame. It returns the current box and
// whether the tracker located the subject this frame. In fallback
// search there is no backend to consult, so Step always reports a
// miss; callers locate the subject via SearchRegion and report hits
// through Reacquire.
func (c *Cascade) Step(frame *detect.Frame) (geometry.Box, bool) {
	switch c.state {
	case StateTracking, StateLost:
		box, ok := c.active.Update(frame)
		if !ok {
			c.losses++
			c.state = StateLost
			return c.lastBox, false
		}
		c.lastBox = box.Clamp(frame.Width, frame.Height)
		c.losses = 0
		c.state = StateTracking
		return c.lastBox, true
	default:
		return c.lastBox, false
	}
}

// SearchRegion returns the area to scan for the subject when the
// backend has lost them: the last known box grown by FallbackMargin
// and clamped to the frame.
func (c *Cascade) SearchRegion(width, height int) geometry.Box {
	return c.lastBox.Expand(FallbackMargin).Clamp(width, height)
}

// Reacquire records a subject sighting found outside the backend, e.g.
// a pose detection matched inside SearchRegion. A tracking backend is
// re-seeded on the new box; in fallback search the box simply becomes
// the new search anchor.
func (c *Cascade) Reacquire(frame *detect.Frame, box geometry.Box) {
	clamped := box.Clamp(frame.Width, frame.Height)
	c.lastBox = clamped
	c.losses = 0
	if c.active != nil && clamped.Trackable() {
		if c.active.Init(frame, clamped) {
			c.state = StateTracking
			return
		}
		c.log.Warn("tracker re-init failed, continuing region search", "tracker", c.activeName)
		c.active.Close()
		c.active = nil
		c.activeName = ""
		c.state = StateFallbackSearch
	}
}

// State returns the cascade's current lifecycle state.
func (c *Cascade) State() State { return c.state }

// ActiveName returns the name of the backend in use, or empty in
// fallback search.
func (c *Cascade) ActiveName() string { return c.activeName }

// Searching reports whether the cascade is in fallback search, with no
// backend at all.
func (c *Cascade) Searching() bool { return c.state == StateFallbackSearch }

// Losses returns the number of consecutive frames the backend has
// missed the subject.
func (c *Cascade) Losses() int { return c.losses }

// LastBox returns the most recent known subject box.
func (c *Cascade) LastBox() geometry.Box { return c.lastBox }

// Close releases the active backend, if any.
func (c *Cascade) Close() error {
	if c.active == nil {
		return nil
	}
	err := c.active.Close()
	c.active = nil
	c.activeName = ""
	return err
}
