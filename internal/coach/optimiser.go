package coach

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/jmerta/cadence-coach/internal/safego"
)

// experiment is one in-flight rhythm test: the user was cued in a
// direction and the heart-rate response is judged after the evaluation
// delay. A nil experiment means nothing is being tested.
type experiment struct {
	direction Direction
	startedAt time.Time
	hrAtStart float64
}

// plateauState marks that the last test found no meaningful HR response.
// The session stays here until heart rate drifts away from the anchor.
type plateauState struct {
	anchorHR float64
}

type optimiserCommand int

const (
	cmdStart optimiserCommand = iota
	cmdStop
)

// Optimiser runs the rhythm-coaching control loop. Cadence is not
// measurable with a bare HR strap, so the loop hill-climbs blind: cue a
// direction, wait, read the heart-rate delta, keep or flip the direction.
//
// The asymmetry is deliberate. A drop in HR confirms the current direction
// and keeps it for the next test. Only a rise flips it. Small deltas are
// noise and park the session on a plateau.
type Optimiser struct {
	model  *CoachModel
	cues   CueEmitter
	logger *log.Logger

	tickPeriod      time.Duration
	evaluationDelay time.Duration
	cooldown        time.Duration

	mu           sync.Mutex
	recording    bool
	currentHR    float64
	hasHR        bool
	history      *historyBuffer
	sensitivity  float64
	direction    Direction
	directionSet bool
	exp          *experiment
	lastTestAt   time.Time
	hasLastTest  bool
	plateau      *plateauState
	advice       Advice

	// nowFn is swapped in tests to drive transitions with fake timestamps
	nowFn func() time.Time

	cmdChan      chan optimiserCommand
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// OptimiserConfig carries the loop timing knobs. Zero values fall back to
// the defaults.
type OptimiserConfig struct {
	TickPeriod      time.Duration
	EvaluationDelay time.Duration
	Cooldown        time.Duration
	Sensitivity     float64
}

func NewOptimiser(model *CoachModel, cues CueEmitter, logger *log.Logger, cfg OptimiserConfig) *Optimiser {
	if model == nil {
		panic("Optimiser: model cannot be nil")
	}
	if cues == nil {
		panic("Optimiser: cues cannot be nil")
	}
	if logger == nil {
		panic("Optimiser: logger cannot be nil")
	}

	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.EvaluationDelay <= 0 {
		cfg.EvaluationDelay = DefaultEvaluationDelay
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Sensitivity < MinSensitivity || cfg.Sensitivity > MaxSensitivity {
		cfg.Sensitivity = DefaultSensitivity
	}

	o := &Optimiser{
		model:           model,
		cues:            cues,
		logger:          logger,
		tickPeriod:      cfg.TickPeriod,
		evaluationDelay: cfg.EvaluationDelay,
		cooldown:        cfg.Cooldown,
		history:         newHistoryBuffer(HistoryCapacity),
		sensitivity:     cfg.Sensitivity,
		advice:          AdviceIdle,
		nowFn:           time.Now,
		cmdChan:         make(chan optimiserCommand, 4),
	}

	model.SetCoachState(o.snapshot())

	o.wg.Add(1)
	safego.Go(logger, o.run)

	return o
}

// Shutdown stops the loop goroutine. Safe to call more than once.
func (o *Optimiser) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.logger.Println("Optimiser: shutting down")
		close(o.cmdChan)
		o.wg.Wait()
		o.logger.Println("Optimiser: shutdown complete")
	})
}

func (o *Optimiser) run() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.tickPeriod)
	ticker.Stop()
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-o.cmdChan:
			if !ok {
				return
			}
			switch cmd {
			case cmdStart:
				ticker.Reset(o.tickPeriod)
			case cmdStop:
				ticker.Stop()
			}
		case <-ticker.C:
			o.Tick(o.nowFn())
		}
	}
}

// IsRecording reports whether a session is active
func (o *Optimiser) IsRecording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recording
}

// ToggleRecording starts a session when idle and stops it when active.
func (o *Optimiser) ToggleRecording() {
	if o.IsRecording() {
		o.StopSession()
	} else {
		o.StartSession()
	}
}

// StartSession begins a fresh coaching session. All prior session state is
// discarded. No-op when already recording.
func (o *Optimiser) StartSession() {
	o.mu.Lock()
	if o.recording {
		o.mu.Unlock()
		return
	}
	o.recording = true
	o.exp = nil
	o.plateau = nil
	o.directionSet = false
	o.hasLastTest = false
	o.history.Clear()
	o.advice = AdviceLearning
	state := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Println("Optimiser: session started")
	o.cmdChan <- cmdStart
	o.model.SetCoachState(state)
}

// StopSession ends the session. State freezes immediately: no tick fires
// after the toggle returns, and no late cue can slip out. No-op when idle.
func (o *Optimiser) StopSession() {
	o.mu.Lock()
	if !o.recording {
		o.mu.Unlock()
		return
	}
	o.recording = false
	o.exp = nil
	o.plateau = nil
	o.advice = AdviceIdle
	state := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Println("Optimiser: session stopped")
	o.cmdChan <- cmdStop
	o.model.SetCoachState(state)
}

// SetHeartRate feeds a heart-rate sample into the loop. Non-finite and
// non-positive readings are dropped without any state change.
func (o *Optimiser) SetHeartRate(bpm float64) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return
	}

	o.mu.Lock()
	o.currentHR = bpm
	o.hasHR = true
	if o.recording {
		o.history.Push(bpm)
	}
	state := o.snapshotLocked()
	o.mu.Unlock()

	o.model.SetCoachState(state)
}

// GetSensitivity returns the current noise threshold in bpm
func (o *Optimiser) GetSensitivity() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sensitivity
}

// AdjustSensitivity moves the noise threshold by delta bpm, clamped to the
// supported range. Takes effect from the next evaluation onward.
func (o *Optimiser) AdjustSensitivity(delta float64) {
	o.mu.Lock()
	next := o.sensitivity + delta
	if next < MinSensitivity {
		next = MinSensitivity
	}
	if next > MaxSensitivity {
		next = MaxSensitivity
	}
	if next == o.sensitivity {
		o.mu.Unlock()
		return
	}
	o.sensitivity = next
	state := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Printf("Optimiser: sensitivity set to %.0f bpm", next)
	o.model.SetCoachState(state)
}

// tickOutcome is what handleTick decides under the lock; cue dispatch and
// model publication happen after the lock is released.
type tickOutcome struct {
	changed bool
	cue     func()
	state   CoachState
}

// Tick advances the control loop by one step at the given time.
func (o *Optimiser) Tick(now time.Time) {
	o.mu.Lock()
	outcome := o.handleTick(now)
	o.mu.Unlock()

	if outcome.cue != nil {
		// Fire-and-forget: the loop never waits on cue delivery
		cue := outcome.cue
		safego.Go(o.logger, cue)
	}
	if outcome.changed {
		o.model.SetCoachState(outcome.state)
	}
}

// handleTick holds the whole decision procedure. Caller must hold o.mu.
func (o *Optimiser) handleTick(now time.Time) tickOutcome {
	if !o.recording {
		return tickOutcome{}
	}

	// A test in flight is evaluated once its delay has elapsed and is
	// otherwise left alone
	if o.exp != nil {
		if now.Sub(o.exp.startedAt) < o.evaluationDelay {
			return tickOutcome{}
		}
		return o.evaluateExperiment()
	}

	// Space tests by the cooldown, measured from the previous test's start
	if o.hasLastTest && now.Sub(o.lastTestAt) < o.cooldown {
		return tickOutcome{}
	}

	// Nothing to test against until the first sample arrives
	if !o.hasHR {
		return tickOutcome{}
	}

	if o.plateau != nil {
		if math.Abs(o.currentHR-o.plateau.anchorHR) < o.sensitivity {
			// Still settled; keep telling the user they're there
			return tickOutcome{}
		}
		o.logger.Printf("Optimiser: HR moved off plateau anchor %.0f (now %.0f), resuming tests", o.plateau.anchorHR, o.currentHR)
		o.plateau = nil
	}

	return o.startExperiment(now)
}

// startExperiment opens a new test in the current direction (up on the
// very first test of a session) and cues the user. Caller must hold o.mu.
func (o *Optimiser) startExperiment(now time.Time) tickOutcome {
	if !o.directionSet {
		o.direction = DirectionUp
		o.directionSet = true
	}

	o.exp = &experiment{
		direction: o.direction,
		startedAt: now,
		hrAtStart: o.currentHR,
	}
	o.lastTestAt = now
	o.hasLastTest = true

	var cue func()
	if o.direction == DirectionUp {
		o.advice = AdviceIncrease
		cue = o.cues.CueIncrease
	} else {
		o.advice = AdviceEase
		cue = o.cues.CueEase
	}

	o.logger.Printf("Optimiser: testing rhythm %s from %.0f bpm", o.direction, o.currentHR)
	return tickOutcome{changed: true, cue: cue, state: o.snapshotLocked()}
}

// evaluateExperiment judges the finished test by the HR delta since its
// start. Caller must hold o.mu.
//
//	|delta| < threshold  -> no meaningful response, enter plateau
//	delta <= -threshold  -> HR fell, the direction works, keep it
//	delta >= threshold   -> HR rose, the direction costs, flip it
func (o *Optimiser) evaluateExperiment() tickOutcome {
	exp := o.exp
	o.exp = nil
	delta := o.currentHR - exp.hrAtStart

	if math.Abs(delta) < o.sensitivity {
		o.plateau = &plateauState{anchorHR: o.currentHR}
		o.advice = AdviceOptimal
		o.logger.Printf("Optimiser: delta %+.0f within threshold, plateau at %.0f bpm", delta, o.currentHR)
		return tickOutcome{changed: true, state: o.snapshotLocked()}
	}

	if delta < 0 {
		// Improvement never flips the direction
		if exp.direction == DirectionUp {
			o.advice = AdviceGoodHigher
		} else {
			o.advice = AdviceGoodEasier
		}
		o.logger.Printf("Optimiser: delta %+.0f, rhythm %s pays off, keeping direction", delta, exp.direction)
		return tickOutcome{changed: true, state: o.snapshotLocked()}
	}

	o.direction = exp.direction.Flipped()
	if o.direction == DirectionDown {
		o.advice = AdviceFlipToEase
	} else {
		o.advice = AdviceFlipToIncrease
	}
	o.logger.Printf("Optimiser: delta %+.0f, rhythm %s too costly, flipping to %s", delta, exp.direction, o.direction)
	return tickOutcome{changed: true, state: o.snapshotLocked()}
}

// GetState returns the current session snapshot
func (o *Optimiser) GetState() CoachState {
	return o.snapshot()
}

func (o *Optimiser) snapshot() CoachState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// snapshotLocked builds the published view of the session. Caller must
// hold o.mu.
func (o *Optimiser) snapshotLocked() CoachState {
	state := CoachState{
		Recording:   o.recording,
		CurrentHR:   o.currentHR,
		History:     o.history.Snapshot(),
		Advice:      o.advice,
		Sensitivity: o.sensitivity,
	}
	if o.plateau != nil {
		state.PlateauActive = true
		state.PlateauHR = o.plateau.anchorHR
	}
	if o.exp != nil {
		state.TestInProgress = true
		state.TestDirection = o.exp.direction
	}
	return state
}
