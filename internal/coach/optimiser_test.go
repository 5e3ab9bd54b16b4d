package coach

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimiser_ToggleTwiceReturnsToIdle(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.ToggleRecording()
	require.True(t, o.IsRecording())

	o.ToggleRecording()
	require.False(t, o.IsRecording())

	state := o.GetState()
	assert.Equal(t, AdviceIdle, state.Advice)
	assert.False(t, state.TestInProgress)
	assert.False(t, state.PlateauActive)
	assert.False(t, o.directionSet)
}

func TestOptimiser_StartSeedsLearning(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.ToggleRecording()

	state := o.GetState()
	assert.True(t, state.Recording)
	assert.Equal(t, AdviceLearning, state.Advice)
	assert.Equal(t, "Learning rhythm...", state.Advice.Text())
	assert.Empty(t, state.History)
}

func TestOptimiser_RejectsInvalidHeartRate(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})
	o.StartSession()
	o.SetHeartRate(120)

	o.SetHeartRate(-5)
	o.SetHeartRate(0)
	o.SetHeartRate(math.NaN())
	o.SetHeartRate(math.Inf(1))

	state := o.GetState()
	assert.Equal(t, 120.0, state.CurrentHR)
	assert.Len(t, state.History, 1)
}

func TestOptimiser_HistoryIsBounded(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})
	o.StartSession()

	for i := 1; i <= 100; i++ {
		o.SetHeartRate(float64(i))
	}

	state := o.GetState()
	require.Len(t, state.History, HistoryCapacity)
	assert.Equal(t, 41.0, state.History[0])
	assert.Equal(t, 100.0, state.History[HistoryCapacity-1])
}

func TestOptimiser_HistoryNotRecordedWhileIdle(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.SetHeartRate(120)

	state := o.GetState()
	assert.Equal(t, 120.0, state.CurrentHR)
	assert.Empty(t, state.History)
}

func TestOptimiser_FirstTickStartsExperimentUp(t *testing.T) {
	o, cues := newTestOptimiser(t, OptimiserConfig{})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	state := o.GetState()
	assert.True(t, state.TestInProgress)
	assert.Equal(t, DirectionUp, state.TestDirection)
	assert.Equal(t, AdviceIncrease, state.Advice)
	assert.Equal(t, "Increase rhythm", state.Advice.Text())

	assert.Eventually(t, func() bool {
		inc, _ := cues.counts()
		return inc == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOptimiser_NoExperimentWithoutHeartRate(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.StartSession()
	o.Tick(time.Now())

	state := o.GetState()
	assert.False(t, state.TestInProgress)
	assert.Equal(t, AdviceLearning, state.Advice)
}

func TestOptimiser_PlateauEntry(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	o.SetHeartRate(141)
	o.Tick(base.Add(DefaultEvaluationDelay))

	state := o.GetState()
	assert.False(t, state.TestInProgress)
	assert.True(t, state.PlateauActive)
	assert.Equal(t, 141.0, state.PlateauHR)
	assert.Equal(t, AdviceOptimal, state.Advice)
	assert.Equal(t, StatusPositive, state.Advice.Status())
}

func TestOptimiser_FlipsDirectionWhenHeartRateRises(t *testing.T) {
	o, cues := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	o.SetHeartRate(146)
	o.Tick(base.Add(15 * time.Second))

	state := o.GetState()
	assert.False(t, state.TestInProgress)
	assert.False(t, state.PlateauActive)
	assert.Equal(t, AdviceFlipToEase, state.Advice)
	assert.Equal(t, StatusAttention, state.Advice.Status())

	// Next experiment must run in the flipped direction
	o.Tick(base.Add(16 * time.Second))

	state = o.GetState()
	require.True(t, state.TestInProgress)
	assert.Equal(t, DirectionDown, state.TestDirection)
	assert.Equal(t, AdviceEase, state.Advice)

	assert.Eventually(t, func() bool {
		_, ease := cues.counts()
		return ease == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOptimiser_KeepsDirectionWhenHeartRateFalls(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	o.SetHeartRate(134)
	o.Tick(base.Add(15 * time.Second))

	state := o.GetState()
	assert.Equal(t, AdviceGoodHigher, state.Advice)
	assert.False(t, state.TestInProgress)

	// A fall never flips: the next experiment still tests Up
	o.Tick(base.Add(16 * time.Second))

	state = o.GetState()
	require.True(t, state.TestInProgress)
	assert.Equal(t, DirectionUp, state.TestDirection)
}

func TestOptimiser_CooldownGatesNextExperiment(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{
		EvaluationDelay: 5 * time.Second,
		Cooldown:        15 * time.Second,
		Sensitivity:     3,
	})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	o.SetHeartRate(146)
	o.Tick(base.Add(5 * time.Second))
	require.Equal(t, AdviceFlipToEase, o.GetState().Advice)

	// Cooldown runs from the previous experiment's start, not its end
	o.Tick(base.Add(8 * time.Second))
	o.Tick(base.Add(13 * time.Second))

	state := o.GetState()
	assert.False(t, state.TestInProgress)
	assert.Equal(t, AdviceFlipToEase, state.Advice)

	o.Tick(base.Add(15 * time.Second))

	state = o.GetState()
	assert.True(t, state.TestInProgress)
	assert.Equal(t, DirectionDown, state.TestDirection)
}

func TestOptimiser_PlateauHoldsWithinThreshold(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(150)
	o.Tick(base)
	o.SetHeartRate(151)
	o.Tick(base.Add(15 * time.Second))
	require.True(t, o.GetState().PlateauActive)

	o.SetHeartRate(152)
	o.Tick(base.Add(30 * time.Second))

	state := o.GetState()
	assert.True(t, state.PlateauActive)
	assert.False(t, state.TestInProgress)
	assert.Equal(t, AdviceOptimal, state.Advice)
}

func TestOptimiser_EndToEndScenario(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	require.Equal(t, AdviceLearning, o.GetState().Advice)

	o.SetHeartRate(150)
	o.Tick(base)

	state := o.GetState()
	require.True(t, state.TestInProgress)
	require.Equal(t, DirectionUp, state.TestDirection)
	require.Equal(t, AdviceIncrease, state.Advice)

	o.SetHeartRate(152)
	o.Tick(base.Add(15 * time.Second))

	state = o.GetState()
	require.True(t, state.PlateauActive)
	require.Equal(t, 152.0, state.PlateauHR)
	require.Equal(t, AdviceOptimal, state.Advice)

	o.SetHeartRate(158)
	o.Tick(base.Add(30 * time.Second))

	state = o.GetState()
	assert.False(t, state.PlateauActive)
	assert.True(t, state.TestInProgress)
	assert.Equal(t, AdviceIncrease, state.Advice)
}

func TestOptimiser_StopClearsTransientState(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)
	require.True(t, o.GetState().TestInProgress)

	o.StopSession()

	state := o.GetState()
	assert.False(t, state.Recording)
	assert.False(t, state.TestInProgress)
	assert.False(t, state.PlateauActive)
	assert.Equal(t, AdviceIdle, state.Advice)

	// Ticks after stop must not move the state machine
	o.Tick(base.Add(time.Minute))
	assert.Equal(t, AdviceIdle, o.GetState().Advice)
}

func TestOptimiser_StartStopAreIdempotent(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.StartSession()
	o.StartSession()
	assert.True(t, o.IsRecording())

	o.StopSession()
	o.StopSession()
	assert.False(t, o.IsRecording())
}

func TestOptimiser_SensitivityClampedToRange(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{})

	o.AdjustSensitivity(100)
	assert.Equal(t, MaxSensitivity, o.GetSensitivity())

	o.AdjustSensitivity(-100)
	assert.Equal(t, MinSensitivity, o.GetSensitivity())

	o.AdjustSensitivity(SensitivityStep)
	assert.Equal(t, MinSensitivity+SensitivityStep, o.GetSensitivity())
}

func TestOptimiser_SensitivityTakesEffectNextEvaluation(t *testing.T) {
	o, _ := newTestOptimiser(t, OptimiserConfig{Sensitivity: 3})
	base := time.Now()

	o.StartSession()
	o.SetHeartRate(140)
	o.Tick(base)

	// Widen the noise band mid-test: a +4 delta now reads as a plateau
	o.AdjustSensitivity(2)
	require.Equal(t, 5.0, o.GetSensitivity())

	o.SetHeartRate(144)
	o.Tick(base.Add(15 * time.Second))

	state := o.GetState()
	assert.True(t, state.PlateauActive)
	assert.Equal(t, AdviceOptimal, state.Advice)
}
