// Package avatar3d drives a rigged character from emotion, landmark and
// manual-offset input, one tick per rendered frame.
package avatar3d

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Surajvthakur/Character-Model/internal/bus"
	"github.com/Surajvthakur/Character-Model/internal/pose"
	"github.com/Surajvthakur/Character-Model/internal/scene"
)

var (
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrUnknownBone    = errors.New("unknown bone")
	ErrNoModelPath    = errors.New("no model path to retry")
)

// maxBoundsAttempts caps how many ticks re-measure a scene whose bounds
// are still degenerate.
const maxBoundsAttempts = 120

type LoadState int

const (
	StateUnloaded LoadState = iota
	StateLoading
	StateLoaded
	StateLoadFailed
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateLoadFailed:
		return "load_failed"
	default:
		return "unloaded"
	}
}

// Loader turns a model path into a scene graph.
type Loader func(path string) (*scene.Scene, error)

type Options struct {
	Rig        pose.Rig
	Compositor pose.CompositorConfig
	Limits     pose.OffsetLimits
	// MaxDelta clamps the frame delta handed to Update by Run.
	MaxDelta time.Duration
	Loader   Loader
	Bus      *bus.EventBus
	Logger   zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Rig:        pose.DefaultRig(),
		Compositor: pose.DefaultCompositorConfig(),
		Limits:     pose.DefaultOffsetLimits(),
		MaxDelta:   100 * time.Millisecond,
		Loader:     scene.Load,
		Logger:     zerolog.Nop(),
	}
}

// Avatar owns the scene, bind poses and smoothing state. Everything that
// mutates them runs under mu, so ticks and reloads never interleave.
// Emotion, landmarks and manual offsets are inputs that may be written
// from any goroutine and are read once at the start of each tick.
type Avatar struct {
	rig      pose.Rig
	loader   Loader
	eventBus *bus.EventBus
	logger   zerolog.Logger
	maxDelta time.Duration

	landmarks atomic.Pointer[pose.LandmarkFrame]
	offsets   *pose.ManualOffsets

	inputMu  sync.RWMutex
	emotion  pose.Emotion
	selected string

	mu          sync.Mutex
	state       LoadState
	loadErr     error
	loadID      string
	path        string
	scene       *scene.Scene
	registry    *pose.BindPoseRegistry
	compositor  *pose.Compositor
	reporter    *pose.BoundsReporter
	boundsTries int
	lastPose    pose.Pose
	tracking    bool
	contextLost bool
	ticks       uint64
	elapsed     time.Duration
}

func NewAvatar(opts Options) *Avatar {
	if opts.Loader == nil {
		opts.Loader = scene.Load
	}
	if opts.MaxDelta <= 0 {
		opts.MaxDelta = 100 * time.Millisecond
	}
	a := &Avatar{
		rig:        opts.Rig,
		loader:     opts.Loader,
		eventBus:   opts.Bus,
		logger:     opts.Logger,
		maxDelta:   opts.MaxDelta,
		offsets:    pose.NewManualOffsets(opts.Limits),
		emotion:    pose.EmotionNeutral,
		compositor: pose.NewCompositor(opts.Rig, opts.Compositor),
		registry:   pose.NewBindPoseRegistry(),
		lastPose:   make(pose.Pose),
	}
	a.reporter = pose.NewBoundsReporter(a.emitBounds)
	return a
}

func (a *Avatar) publish(t bus.EventType, data map[string]any) {
	if a.eventBus != nil {
		a.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}

// emitBounds runs inside a tick or a load, with mu held.
func (a *Avatar) emitBounds(b pose.SceneBounds) {
	a.logger.Info().
		Str("load_id", a.loadID).
		Float64("radius", b.Radius).
		Msg("Scene bounds ready")
	a.publish(bus.EventTypeBoundsReady, map[string]any{
		"load_id": a.loadID,
		"bounds":  b,
	})
}

// LoadModel replaces the current scene. The bone lookup, bind poses,
// smoothing state and bounds are rebuilt together. Manual offsets survive.
// A failed load drops the previous scene, so edits are refused until a
// load succeeds.
func (a *Avatar) LoadModel(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateLoading
	a.path = path
	a.loadID = uuid.NewString()

	sc, err := a.loader(path)
	if err != nil {
		a.clearScene()
		a.state = StateLoadFailed
		a.loadErr = err
		a.logger.Error().Err(err).Str("path", path).Msg("Model load failed")
		a.publish(bus.EventTypeModelLoadFailed, map[string]any{
			"load_id": a.loadID,
			"path":    path,
			"error":   err.Error(),
		})
		return fmt.Errorf("load model: %w", err)
	}

	a.clearScene()
	a.scene = sc
	sc.RegisterBindPoses(a.registry)
	for _, name := range sc.BoneNames() {
		a.offsets.Ensure(name)
	}
	a.loadErr = nil
	a.state = StateLoaded

	wanted := append(a.rig.RetargetBones(), a.rig.EmotionBones()...)
	if missing := pose.MissingBones(sc, wanted); len(missing) > 0 {
		a.logger.Warn().Strs("missing", missing).Msg("Rig is missing driven bones, affected layers are skipped")
	}

	names := sc.BoneNames()
	a.logger.Info().
		Str("load_id", a.loadID).
		Str("path", path).
		Int("bones", len(names)).
		Msg("Model loaded")
	a.publish(bus.EventTypeModelLoaded, map[string]any{
		"load_id": a.loadID,
		"path":    path,
		"bones":   names,
	})

	a.offerBounds()
	return nil
}

func (a *Avatar) clearScene() {
	a.scene = nil
	a.registry = pose.NewBindPoseRegistry()
	a.compositor.Reset()
	a.reporter.Reset()
	a.boundsTries = 0
	a.lastPose = make(pose.Pose)
	a.tracking = false
}

// offerBounds measures the scene until the reporter accepts a sphere or
// the attempts run out. Called with mu held.
func (a *Avatar) offerBounds() {
	if a.reporter.State() == pose.BoundsSent || a.boundsTries >= maxBoundsAttempts {
		return
	}
	a.boundsTries++
	if a.reporter.Offer(a.scene.Bounds()) {
		return
	}
	if a.boundsTries == maxBoundsAttempts {
		a.logger.Warn().
			Str("load_id", a.loadID).
			Int("attempts", a.boundsTries).
			Msg("Scene has no measurable geometry, camera stays unframed")
	}
}

// RetryLoad loads the last requested path again.
func (a *Avatar) RetryLoad() error {
	a.mu.Lock()
	path := a.path
	a.mu.Unlock()

	if path == "" {
		return ErrNoModelPath
	}
	return a.LoadModel(path)
}

// State returns the load state and, after a failure, its error.
func (a *Avatar) State() (LoadState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.loadErr
}

func (a *Avatar) LoadID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadID
}

// SetEmotion sets the emotion read by the next tick.
func (a *Avatar) SetEmotion(e pose.Emotion) {
	a.inputMu.Lock()
	changed := a.emotion != e
	a.emotion = e
	a.inputMu.Unlock()

	if changed {
		a.logger.Debug().Str("emotion", string(e)).Msg("Emotion changed")
		a.publish(bus.EventTypeEmotionChanged, map[string]any{"emotion": string(e)})
	}
}

func (a *Avatar) Emotion() pose.Emotion {
	a.inputMu.RLock()
	defer a.inputMu.RUnlock()
	return a.emotion
}

// SetLandmarks stores the latest estimator frame. nil means no detection.
func (a *Avatar) SetLandmarks(f *pose.LandmarkFrame) {
	a.landmarks.Store(f)
}

func (a *Avatar) checkBone(bone string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateLoaded || a.scene == nil {
		return ErrModelNotLoaded
	}
	if !a.scene.Has(bone) {
		return fmt.Errorf("%w: %q", ErrUnknownBone, bone)
	}
	return nil
}

// ChangeOffset edits one axis of a bone's manual offset.
func (a *Avatar) ChangeOffset(bone string, kind pose.TransformKind, axis int, value float64) error {
	if err := a.checkBone(bone); err != nil {
		return err
	}
	if err := a.offsets.Set(bone, kind, axis, value); err != nil {
		return err
	}
	a.publishTransforms(bone)
	return nil
}

// ResetBone zeroes a bone's manual offset.
func (a *Avatar) ResetBone(bone string) error {
	if err := a.checkBone(bone); err != nil {
		return err
	}
	a.offsets.ResetBone(bone)
	a.publishTransforms(bone)
	return nil
}

// ResetAll zeroes every manual offset.
func (a *Avatar) ResetAll() {
	a.offsets.ResetAll()
	a.publishTransforms("")
}

func (a *Avatar) publishTransforms(bone string) {
	a.publish(bus.EventTypeTransformsChanged, map[string]any{
		"bone":       bone,
		"transforms": a.offsets.Snapshot(),
	})
}

// SelectBone records the bone the control surface is editing.
func (a *Avatar) SelectBone(bone string) error {
	if err := a.checkBone(bone); err != nil {
		return err
	}
	a.inputMu.Lock()
	a.selected = bone
	a.inputMu.Unlock()
	a.publish(bus.EventTypeBoneSelected, map[string]any{"bone": bone})
	return nil
}

func (a *Avatar) Selected() string {
	a.inputMu.RLock()
	defer a.inputMu.RUnlock()
	return a.selected
}

// BoneNames returns the loaded rig's bones in traversal order.
func (a *Avatar) BoneNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scene == nil {
		return nil
	}
	return a.scene.BoneNames()
}

// Transforms returns a copy of the manual offset map.
func (a *Avatar) Transforms() map[string]pose.BoneTransform {
	return a.offsets.Snapshot()
}

// BindPose returns a bone's captured rest transform.
func (a *Avatar) BindPose(bone string) (pose.BindPose, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Get(bone)
}

// Pose returns the last transform written to each bone.
func (a *Avatar) Pose() pose.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(pose.Pose, len(a.lastPose))
	for k, v := range a.lastPose {
		out[k] = v
	}
	return out
}

// Bounds returns the emitted scene bounds of the current load.
func (a *Avatar) Bounds() (pose.SceneBounds, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reporter.Sent()
}

// SetTuning applies new blend factors, gains and offset limits.
func (a *Avatar) SetTuning(cfg pose.CompositorConfig, limits pose.OffsetLimits) {
	a.mu.Lock()
	a.compositor.SetTuning(cfg)
	a.mu.Unlock()
	a.offsets.SetLimits(limits)
}

// SetContextLost pauses ticking while the rendering context is gone.
// Smoothing resumes from the last pose once it is restored.
func (a *Avatar) SetContextLost(lost bool) {
	a.mu.Lock()
	changed := a.contextLost != lost
	a.contextLost = lost
	a.mu.Unlock()

	if !changed {
		return
	}
	if lost {
		a.logger.Warn().Msg("Rendering context lost, pausing")
		a.publish(bus.EventTypeContextLost, nil)
	} else {
		a.logger.Info().Msg("Rendering context restored")
		a.publish(bus.EventTypeContextRestored, nil)
	}
}

// Update runs one tick. It reports whether a pose was composed and applied.
func (a *Avatar) Update(dt time.Duration) (pose.Status, bool) {
	frame := a.landmarks.Load()
	emotion := a.Emotion()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateLoaded || a.contextLost {
		return pose.Status{}, false
	}

	if dt > a.maxDelta {
		dt = a.maxDelta
	}
	a.elapsed += dt
	a.ticks++

	p, status := a.compositor.Compose(pose.FrameInputs{Emotion: emotion, Landmarks: frame}, a.scene, a.registry, a.offsets)
	a.scene.Apply(p)
	for name, t := range p {
		a.lastPose[name] = t
	}

	if status.Retargeted != a.tracking {
		a.tracking = status.Retargeted
		if a.tracking {
			a.logger.Info().Msg("Pose tracking acquired")
			a.publish(bus.EventTypeTrackingAcquired, nil)
		} else {
			a.logger.Info().Msg("Pose tracking lost, holding arms")
			a.publish(bus.EventTypeTrackingLost, nil)
		}
	}

	a.offerBounds()
	return status, true
}

// Run ticks at fps until ctx is done.
func (a *Avatar) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			a.Update(dt)
		}
	}
}

// Stats reports how many ticks ran and the simulated time they covered.
func (a *Avatar) Stats() (ticks uint64, elapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticks, a.elapsed
}
