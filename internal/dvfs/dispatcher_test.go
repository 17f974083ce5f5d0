package dvfs

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() Params {
	return Params{
		MaxClock:           1000,
		MinClock:           200,
		FreqMargin:         100,
		WeightClass:        [2]int{1, 9},
		AssistPollInterval: 10 * time.Millisecond,
	}
}

// newTestDispatcher installs the five level table for every governor,
// starting at 600
func newTestDispatcher(t *testing.T, params Params, hooks Hooks) *Dispatcher {
	t.Helper()
	d := NewDispatcher(params, hooks, quietLogger())
	for _, id := range AllGovernors() {
		require.NoError(t, d.InstallTable(id, fiveLevelTable()))
		require.NoError(t, d.SetStartClock(id, 600))
	}
	return d
}

func TestDispatcher_InstallTableRejectsBadInput(t *testing.T) {
	d := NewDispatcher(testParams(), Hooks{}, quietLogger())

	assert.ErrorIs(t, d.InstallTable(GovernorID(9), fiveLevelTable()), ErrInvalidGovernor)
	assert.ErrorIs(t, d.InstallTable(GovernorDefault, nil), ErrEmptyTable)
	assert.ErrorIs(t, d.InstallTable(GovernorDefault, Table{{Clock: 1}, {Clock: 2}}), ErrTableOrder)
	assert.ErrorIs(t, d.SetStartClock(GovernorDefault, 0), ErrInvalidClock)
	assert.ErrorIs(t, d.SetStartClock(GovernorDefault, 1200), ErrInvalidClock)
	assert.ErrorIs(t, d.SetStartClock(GovernorDefault, 100), ErrInvalidClock)
}

func TestDispatcher_StartClockPulledUnderLimit(t *testing.T) {
	params := testParams()
	params.UsingMaxLimitClock = true
	params.MaxClockLimit = 800
	d := NewDispatcher(params, Hooks{}, quietLogger())
	for _, id := range AllGovernors() {
		require.NoError(t, d.InstallTable(id, fiveLevelTable()))
		require.NoError(t, d.SetStartClock(id, 1000))
	}

	require.NoError(t, d.Init(GovernorDefault))
	assert.Equal(t, 1, d.Step())
	assert.Equal(t, 800, d.CurClock())

	clock, err := d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 800, clock)
}

func TestDispatcher_DecideBeforeInit(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})

	_, err := d.DecideNextFrequency(50)

	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDispatcher_InitSelectsStartClock(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})

	require.NoError(t, d.Init(GovernorDefault))

	snap := d.Snapshot()
	assert.Equal(t, "Default", snap.GovernorName)
	assert.Equal(t, 2, snap.Step)
	assert.Equal(t, 600, snap.Clock)
	assert.Equal(t, 600, snap.CurClock)
	assert.Equal(t, 80, snap.Utilization)
	assert.Equal(t, 1, snap.DownRequirement)
}

func TestDispatcher_InitWithoutTable(t *testing.T) {
	d := NewDispatcher(testParams(), Hooks{}, quietLogger())

	err := d.Init(GovernorInteractive)

	assert.ErrorIs(t, err, ErrInvalidGovernor)
}

func TestDispatcher_SwitchGovernorInvalidKeepsState(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorInteractive))
	_, err := d.DecideNextFrequency(95)
	require.NoError(t, err)
	before := d.Snapshot()

	err = d.SwitchGovernor(GovernorID(17))

	assert.ErrorIs(t, err, ErrInvalidGovernor)
	if diff := cmp.Diff(before, d.Snapshot()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
}

func TestDispatcher_SwitchGovernorIdempotent(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorDefault))
	d.SetLocks(800, 400)

	require.NoError(t, d.SwitchGovernor(GovernorBooster))
	first := d.Snapshot()
	require.NoError(t, d.SwitchGovernor(GovernorBooster))

	if diff := cmp.Diff(first, d.Snapshot()); diff != "" {
		t.Errorf("second switch changed state (-first +second):\n%s", diff)
	}
	assert.Zero(t, first.MaxLock, "full switch clears locks")
	assert.Zero(t, first.MinLock)
}

func TestDispatcher_SwitchGovernorDropsAlgorithmMemory(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorStatic))

	for range staticPeriod - 1 {
		_, err := d.DecideNextFrequency(50)
		require.NoError(t, err)
	}
	require.NoError(t, d.SwitchGovernor(GovernorStatic))

	_, err := d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Step(), "period restarts after a switch")
}

func TestDispatcher_DecideReportsRequestedClock(t *testing.T) {
	est := &recordingEstimator{}
	d := newTestDispatcher(t, testParams(), Hooks{Estimator: est})
	require.NoError(t, d.Init(GovernorDefault))

	clock, err := d.DecideNextFrequency(95)
	require.NoError(t, err)
	assert.Equal(t, 800, clock)

	clock, err = d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 800, clock)

	assert.Equal(t, []int{800, 800}, est.clocks)
	assert.Equal(t, 50, d.Utilization())
}

func TestDispatcher_ClampsUtilization(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorDefault))

	_, err := d.DecideNextFrequency(250)
	require.NoError(t, err)
	assert.Equal(t, 100, d.Utilization())

	_, err = d.DecideNextFrequency(-4)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Utilization())
}

func TestDispatcher_FullComputeBoost(t *testing.T) {
	full := testFlag(true)
	d := newTestDispatcher(t, testParams(), Hooks{FullCompute: &full})
	require.NoError(t, d.Init(GovernorDefault))

	clock, err := d.DecideNextFrequency(0)
	require.NoError(t, err)
	assert.Equal(t, 1000, clock)
	assert.Equal(t, 0, d.Step())

	full = false
	clock, err = d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 1000, clock, "governor continues from the boosted step")
}

func TestDispatcher_FullComputeBoostHonoursMaxLimit(t *testing.T) {
	full := testFlag(true)
	params := testParams()
	params.UsingMaxLimitClock = true
	params.MaxClockLimit = 800
	d := newTestDispatcher(t, params, Hooks{FullCompute: &full})
	require.NoError(t, d.Init(GovernorDefault))

	clock, err := d.DecideNextFrequency(0)
	require.NoError(t, err)
	assert.Equal(t, 800, clock)
	assert.Equal(t, 1, d.Step())

	full = false
	clock, err = d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 800, clock)
}

func TestDispatcher_FloorClock(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorDefault))

	assert.Equal(t, 200, d.FloorClock(200), "floor defaults to the min clock")

	require.NoError(t, d.SetMinClockLimit(500))
	assert.Equal(t, 600, d.FloorClock(200))
	assert.Equal(t, 600, d.FloorClock(400))
	assert.Equal(t, 800, d.FloorClock(800))

	require.NoError(t, d.SetMinClockLimit(1000))
	assert.Equal(t, 1000, d.FloorClock(600))
}

func TestDispatcher_FullComputeBoostDisabled(t *testing.T) {
	full := testFlag(true)
	params := testParams()
	params.BoostDisabled = true
	d := newTestDispatcher(t, params, Hooks{FullCompute: &full})
	require.NoError(t, d.Init(GovernorDefault))

	clock, err := d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, 600, clock)
}

func TestDispatcher_AssistModeEdges(t *testing.T) {
	assist := testFlag(false)
	poll := &recordingPoll{current: int64(100 * time.Millisecond)}
	d := newTestDispatcher(t, testParams(), Hooks{AssistMode: &assist, Poll: poll})
	require.NoError(t, d.Init(GovernorInteractive))

	_, err := d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Empty(t, poll.setCalls)

	assist = true
	for range 3 {
		_, err = d.DecideNextFrequency(50)
		require.NoError(t, err)
	}
	assert.Equal(t, GovernorJoint, d.Governor())
	assert.True(t, d.Snapshot().AssistMode)
	assert.Equal(t, []int64{int64(10 * time.Millisecond)}, poll.setCalls, "one switch per rising edge")

	assist = false
	_, err = d.DecideNextFrequency(50)
	require.NoError(t, err)
	assert.Equal(t, GovernorInteractive, d.Governor())
	assert.False(t, d.Snapshot().AssistMode)
	assert.Equal(t, []int64{int64(10 * time.Millisecond), int64(100 * time.Millisecond)}, poll.setCalls)
}

func TestDispatcher_AssistModeWithoutJointTable(t *testing.T) {
	assist := testFlag(true)
	d := NewDispatcher(testParams(), Hooks{AssistMode: &assist}, quietLogger())
	require.NoError(t, d.InstallTable(GovernorDefault, fiveLevelTable()))
	require.NoError(t, d.SetStartClock(GovernorDefault, 600))
	require.NoError(t, d.Init(GovernorDefault))

	_, err := d.DecideNextFrequency(50)

	require.NoError(t, err)
	assert.Equal(t, GovernorDefault, d.Governor())
	assert.False(t, d.Snapshot().AssistMode)
}

func TestDispatcher_FaultOnOutOfBoundsStep(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorStatic))

	// move the cap under the current step without the clamp SetMaxClockLimit applies
	d.mu.Lock()
	d.state.UsingMaxLimitClock = true
	d.state.MaxClockLimit = 400
	d.mu.Unlock()

	_, err := d.DecideNextFrequency(50)

	var fault *FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, GovernorStatic, fault.Governor)
	assert.Equal(t, 2, fault.Step)
	assert.Equal(t, 3, fault.Lower)
	assert.Equal(t, 4, fault.Upper)
	assert.Equal(t, 400, fault.State.MaxClockLimit)
	assert.Contains(t, err.Error(), "Static")
}

func TestDispatcher_SetMaxClockLimitClampsStep(t *testing.T) {
	params := testParams()
	params.UsingMaxLimitClock = true
	d := newTestDispatcher(t, params, Hooks{})
	require.NoError(t, d.Init(GovernorDefault))

	require.NoError(t, d.SetMaxClockLimit(400))
	assert.Equal(t, 3, d.Step())

	clock, err := d.DecideNextFrequency(100)
	require.NoError(t, err)
	assert.Equal(t, 400, clock)

	assert.ErrorIs(t, d.SetMaxClockLimit(100), ErrInvalidClock)
	assert.ErrorIs(t, d.SetMinClockLimit(5000), ErrInvalidClock)
	assert.NoError(t, d.SetMinClockLimit(400))
}

func TestDispatcher_SetCurClockFeedsGovernors(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})
	require.NoError(t, d.Init(GovernorJoint))

	d.SetCurClock(400)

	assert.Equal(t, 400, d.CurClock())
	clock, err := d.DecideNextFrequency(100)
	require.NoError(t, err)
	assert.Equal(t, 400, clock, "100% at 400 needs 400")
}

func TestDispatcher_GovernorsCopiesRegistry(t *testing.T) {
	d := newTestDispatcher(t, testParams(), Hooks{})

	infos := d.Governors()
	require.Len(t, infos, 6)
	infos[0].Table[0].Clock = 1

	assert.Equal(t, 1000, d.Governors()[0].Table[0].Clock)
	assert.Equal(t, "Default", infos[0].Name)
	assert.Equal(t, 600, infos[0].StartClock)
}

func TestDispatcher_StepStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, id := range AllGovernors() {
		for _, limited := range []bool{false, true} {
			params := testParams()
			params.UsingMaxLimitClock = limited
			params.Interactive = InteractiveParams{HighspeedClock: 800, HighspeedLoad: 85, HighspeedDelay: 1}
			var assist, full testFlag
			hooks := Hooks{AssistMode: &assist, FullCompute: &full, Poll: &recordingPoll{current: int64(time.Second)}}
			d := NewDispatcher(params, hooks, quietLogger())
			for _, g := range AllGovernors() {
				require.NoError(t, d.InstallTable(g, fiveLevelTable()))
				start := fiveLevelTable()[rng.Intn(5)].Clock
				require.NoError(t, d.SetStartClock(g, start))
			}
			require.NoError(t, d.SetMaxClockLimit(800))
			require.NoError(t, d.Init(id))

			for i := range 500 {
				if i%7 == 0 {
					full = rng.Intn(4) == 0
				}
				if i%30 == 0 {
					assist = rng.Intn(2) == 0
				}
				if i%50 == 0 {
					limit := fiveLevelTable()[rng.Intn(5)].Clock + rng.Intn(150)
					require.NoError(t, d.SetMaxClockLimit(limit))
				}
				if i%20 == 0 {
					d.SetCurClock(fiveLevelTable()[rng.Intn(5)].Clock)
				}

				_, err := d.DecideNextFrequency(rng.Intn(101))
				require.NoError(t, err, "%s limited=%v sample %d", id, limited, i)

				snap := d.Snapshot()
				lower, upper := stateBounds(snap)
				require.GreaterOrEqual(t, snap.Step, lower)
				require.LessOrEqual(t, snap.Step, upper)
			}
		}
	}
}

func stateBounds(snap Snapshot) (int, int) {
	s := State{
		Table:              fiveLevelTable(),
		MaxClock:           snap.MaxClock,
		MinClock:           snap.MinClock,
		MaxClockLimit:      snap.MaxClockLimit,
		UsingMaxLimitClock: snap.UsingMaxLimitClock,
	}
	return s.Bounds()
}

func TestTimeInState_Residency(t *testing.T) {
	now := time.Unix(1000, 0)
	tis := NewTimeInState()
	tis.now = func() time.Time { return now }

	tis.ReportRequestedClock(600)
	now = now.Add(2 * time.Second)
	tis.ReportRequestedClock(800)
	now = now.Add(time.Second)
	tis.ReportRequestedClock(600)
	now = now.Add(500 * time.Millisecond)

	want := []Residency{
		{Clock: 800, Time: time.Second},
		{Clock: 600, Time: 2500 * time.Millisecond},
	}
	if diff := cmp.Diff(want, tis.Residency()); diff != "" {
		t.Errorf("residency mismatch (-want +got):\n%s", diff)
	}

	tis.Reset()
	assert.Empty(t, tis.Residency())
}
