package instant

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRuntime creates a Runtime with logging discarded so test output
// stays readable. Extra options are applied on top.
func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return New(append(base, opts...)...)
}

func mustRunInstant(t *testing.T, rt *Runtime) Report {
	t.Helper()
	report, err := rt.RunInstant(context.Background())
	require.NoError(t, err)
	return report
}

func TestRuntime_New_Defaults(t *testing.T) {
	rt := newTestRuntime(t)

	assert.Equal(t, uint64(0), rt.Instant())
	assert.Equal(t, 0, rt.Live())
	assert.NotNil(t, rt.Clock())
	assert.True(t, rt.Quiescent(), "an empty runtime has nothing to run")
}

func TestRuntime_Register_ZeroProcessPanics(t *testing.T) {
	rt := newTestRuntime(t)

	assert.PanicsWithValue(t, "instant: Register of zero Process", func() {
		rt.Register(Process[int]{})
	})
	assert.PanicsWithValue(t, "instant: Register of zero Process", func() {
		rt.Register(nil)
	})
}

func TestRuntime_ValueCompletesInFirstInstant(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Register(Value(42))

	report := mustRunInstant(t, rt)

	assert.Equal(t, uint64(0), report.Instant)
	require.Len(t, report.Completed, 1)
	cr := report.Completed[0]
	assert.Equal(t, h, cr.Handle)
	assert.NotEmpty(t, cr.Token)
	assert.Equal(t, 42, cr.Value)
	assert.NoError(t, cr.Err)
	assert.False(t, report.StillActive)
	assert.Equal(t, uint64(1), rt.Instant())
}

func TestRuntime_PauseConsumesExactlyOneInstant(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Pause())

	first := mustRunInstant(t, rt)
	assert.Empty(t, first.Completed)
	assert.True(t, first.StillActive)

	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 1)
	assert.Equal(t, struct{}{}, second.Completed[0].Value)
	assert.False(t, second.StillActive)
}

func TestRuntime_MapAppliesWithoutConsumingInstant(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Map(Value(21), func(v int) int { return v * 2 }))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, 42, report.Completed[0].Value)
}

func TestRuntime_ThenChainsInstantaneously(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Then(Value(1), Then(Value(2), Value("done"))))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, "done", report.Completed[0].Value)
}

func TestRuntime_ThenAfterPauseStartsNextInstant(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)
	rt.Register(Then(Pause(), Emit(sig, 7)))

	mustRunInstant(t, rt)
	assert.False(t, sig.IsPresent(), "the continuation must not run before the pause elapses")

	report := mustRunInstant(t, rt)
	require.Len(t, report.Completed, 1)
	assert.True(t, sig.IsPresent())
}

func TestRuntime_BindChoosesContinuationFromValue(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Bind(Value(6), func(v int) Process[int] {
		return Value(v * 7)
	}))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, 42, report.Completed[0].Value)
}

func TestRuntime_EmissionOrderIsObservedAcrossInstants(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("step"))

	var seen []int
	producer := Then(Emit(sig, 1), Then(Pause(), Emit(sig, 2)))
	consumer := Repeat(Map(AwaitImmediate(sig), func(v int) int {
		seen = append(seen, v)
		return v
	}), 2)

	rt.Register(producer)
	rt.Register(consumer)

	first := mustRunInstant(t, rt)
	assert.Empty(t, first.Completed, "both processes span into the second instant")
	assert.Equal(t, []int{1}, seen, "a second await of the same signal defers to the next emission")

	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 2)
	assert.Equal(t, 2, second.Completed[1].Value)
	assert.Equal(t, []int{1, 2}, seen)
	assert.False(t, second.StillActive)
}

func TestRuntime_AwaitImmediate_ParksUntilEmission(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[string](rt)

	rt.Register(AwaitImmediate(sig))
	first := mustRunInstant(t, rt)
	assert.Empty(t, first.Completed)
	assert.True(t, first.StillActive)

	rt.Register(Emit(sig, "hello"))
	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 2)
	assert.Equal(t, "hello", second.Completed[1].Value, "the waiter wakes in the emission instant")
}

func TestRuntime_AwaitImmediate_SeesPartialFold(t *testing.T) {
	rt := newTestRuntime(t)
	sig, err := NewCombinedSignal(rt, func(a, b int) int { return a + b }, WithSignalName("total"))
	require.NoError(t, err)

	rt.Register(Emit(sig, 1))
	rt.Register(AwaitImmediate(sig))
	rt.Register(Emit(sig, 2))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 3)
	assert.Equal(t, 1, report.Completed[1].Value, "the value is whatever had folded at observation time")

	v, ok := sig.Value()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRuntime_Await_DeliversSettledValue(t *testing.T) {
	rt := newTestRuntime(t)
	sig, err := NewCombinedSignal(rt, func(a, b int) int { return a + b }, WithSignalName("total"))
	require.NoError(t, err)

	rt.Register(Await(sig))
	for i := 0; i < 3; i++ {
		rt.Register(Emit(sig, 14))
	}

	first := mustRunInstant(t, rt)
	require.Len(t, first.Completed, 3, "only the emitters finish in the emission instant")
	assert.True(t, first.StillActive)

	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 1)
	assert.Equal(t, 42, second.Completed[0].Value, "the awaited value includes every emission of the instant")
	assert.False(t, second.StillActive)
}

func TestRuntime_AwaitAbsence_ResolvesAtInstantClose(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("alarm"))

	rt.Register(Then(AwaitAbsence(sig), Value("quiet")))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, "quiet", report.Completed[0].Value, "an unemitted signal resolves absent within the same instant")
	assert.False(t, report.StillActive)
}

func TestRuntime_AwaitAbsence_WaitsOutEmissionInstants(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[string](rt, WithSignalName("alarm"))

	rt.Register(AwaitAbsence(sig))
	rt.Register(Emit(sig, "on"))

	first := mustRunInstant(t, rt)
	require.Len(t, first.Completed, 1, "the emission keeps the absence waiter parked")
	assert.True(t, first.StillActive)

	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 1)
	assert.Equal(t, struct{}{}, second.Completed[0].Value)
	assert.False(t, second.StillActive)
}

func TestRuntime_Present_TakesThenBranchSameInstant(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	rt.Register(Emit(sig, 1))
	rt.Register(Present(sig, Value("fast"), Value("slow")))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 2)
	assert.Equal(t, "fast", report.Completed[1].Value)
}

func TestRuntime_Present_LateEmissionStillTakesThen(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	// The decision waiter parks before the emitter runs and is woken by
	// the emission within the same instant.
	rt.Register(Present(sig, Value("fast"), Value("slow")))
	rt.Register(Emit(sig, 1))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 2)
	assert.Equal(t, "fast", report.Completed[1].Value)
}

func TestRuntime_Present_ElseBranchIsDelayed(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	rt.Register(Present(sig, Value("fast"), Value("slow")))

	first := mustRunInstant(t, rt)
	assert.Empty(t, first.Completed, "absence cannot be observed before the instant closes")
	assert.True(t, first.StillActive)

	second := mustRunInstant(t, rt)
	require.Len(t, second.Completed, 1)
	assert.Equal(t, "slow", second.Completed[0].Value)
}

func TestRuntime_Join_PairsBranchResults(t *testing.T) {
	rt := newTestRuntime(t)

	rt.Register(Join(Value("left"), Value("right")))
	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, Pair[string, string]{First: "left", Second: "right"}, report.Completed[0].Value)
}

func TestRuntime_Join_LeftBranchRunsFirst(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	rt.Register(Join(Emit(sig, 9), AwaitImmediate(sig)))
	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, Pair[struct{}, int]{First: struct{}{}, Second: 9}, report.Completed[0].Value)
}

func TestRuntime_Join_WaitsForSlowerBranch(t *testing.T) {
	rt := newTestRuntime(t)

	slow := Then(Pause(), Then(Pause(), Then(Pause(), Value(32))))
	rt.Register(Map(Join(Value(10), slow), func(p Pair[int, int]) int {
		return p.First + p.Second
	}))

	for i := 0; i < 3; i++ {
		report := mustRunInstant(t, rt)
		assert.Empty(t, report.Completed)
		assert.True(t, report.StillActive)
	}

	final := mustRunInstant(t, rt)
	require.Len(t, final.Completed, 1)
	assert.Equal(t, 42, final.Completed[0].Value)
	assert.False(t, final.StillActive)
	assert.Equal(t, 0, rt.Live())
}

func TestRuntime_Loop_NeverCompletesOnItsOwn(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("tick"))

	h := rt.Register(Loop(Then(Emit(sig, 1), Pause())))

	for i := 0; i < 3; i++ {
		report := mustRunInstant(t, rt)
		assert.Empty(t, report.Completed)
		assert.True(t, report.StillActive)
		assert.True(t, sig.IsPresent(), "the loop re-emits every instant")
	}

	require.NoError(t, rt.Kill(h))
}

func TestRuntime_InstantaneousLoopGuard(t *testing.T) {
	rt := newTestRuntime(t, WithMaxLoopIterations(5))
	sig := NewSignal[int](rt, WithSignalName("tick"))

	rt.Register(Loop(Value(1)))
	rt.Register(Emit(sig, 7))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 2)

	spinner := report.Completed[0]
	require.Error(t, spinner.Err)
	assert.True(t, IsInstantaneousLoopError(spinner.Err))
	var re *RuntimeError
	require.ErrorAs(t, spinner.Err, &re)
	assert.Equal(t, "6", re.Details["iterations"])
	assert.Equal(t, "5", re.Details["cap"])

	bystander := report.Completed[1]
	assert.NoError(t, bystander.Err)
	assert.Equal(t, struct{}{}, bystander.Value)
	assert.True(t, sig.IsPresent(), "an unrelated process must not be disturbed")
	assert.False(t, report.StillActive)
}

func TestRuntime_RepeatAtTheIterationCap(t *testing.T) {
	rt := newTestRuntime(t, WithMaxLoopIterations(5))

	rt.Register(Repeat(Value("ok"), 5))
	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.NoError(t, report.Completed[0].Err, "exactly cap iterations still complete")
	assert.Equal(t, "ok", report.Completed[0].Value)
}

func TestRuntime_RepeatBeyondTheIterationCap(t *testing.T) {
	rt := newTestRuntime(t, WithMaxLoopIterations(5))

	rt.Register(Repeat(Value("ok"), 6))
	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.True(t, IsInstantaneousLoopError(report.Completed[0].Err))
}

func TestRuntime_LoopBudgetResetsEachInstant(t *testing.T) {
	rt := newTestRuntime(t, WithMaxLoopIterations(3))

	// Every second iteration pauses, so four iterations spread over three
	// instants with at most two body terminations per instant.
	var n int
	body := Bind(Value(0), func(int) Process[struct{}] {
		n++
		if n%2 == 0 {
			return Pause()
		}
		return Value(struct{}{})
	})
	rt.Register(Repeat(body, 4))

	reports, err := rt.RunUntilTerminated(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 3)
	require.Len(t, reports[2].Completed, 1)
	assert.NoError(t, reports[2].Completed[0].Err, "the cap applies per instant, not across the run")
	assert.Equal(t, 4, n)
}

func TestRuntime_While_ExitsWithValue(t *testing.T) {
	rt := newTestRuntime(t)

	var count int
	rt.Register(While(Map(Value(struct{}{}), func(struct{}) LoopStatus[int] {
		count++
		if count == 42 {
			return Exit(count)
		}
		return Continue[int]()
	})))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.Equal(t, 42, report.Completed[0].Value)
	assert.Equal(t, 42, count)
}

func TestRuntime_While_GuardTripsOnEndlessContinue(t *testing.T) {
	rt := newTestRuntime(t, WithMaxLoopIterations(5))

	rt.Register(While(Map(Value(struct{}{}), func(struct{}) LoopStatus[int] {
		return Continue[int]()
	})))

	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1)
	assert.True(t, IsInstantaneousLoopError(report.Completed[0].Err))
}

func TestRuntime_Kill_RemovesProcess(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("tick"))

	h := rt.Register(Loop(Then(Emit(sig, 1), Pause())))
	mustRunInstant(t, rt)
	require.True(t, sig.IsPresent())

	require.NoError(t, rt.Kill(h))
	assert.Equal(t, 0, rt.Live())

	report := mustRunInstant(t, rt)
	assert.False(t, sig.IsPresent(), "a killed process must not run again")
	assert.Empty(t, report.Completed, "killed processes report no completion")
	assert.False(t, report.StillActive)

	err := rt.Kill(h)
	assert.True(t, IsUnknownHandleError(err), "killing twice should fail cleanly")
}

func TestRuntime_Kill_TakesDownJoinBranches(t *testing.T) {
	rt := newTestRuntime(t)

	h := rt.Register(Join(Loop(Pause()), Loop(Pause())))
	mustRunInstant(t, rt)
	assert.Equal(t, 3, rt.Live(), "parent and both branches are live")

	require.NoError(t, rt.Kill(h))
	assert.Equal(t, 0, rt.Live())
}

func TestRuntime_Kill_LeavesStaleWaiterEntriesHarmless(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	h := rt.Register(AwaitImmediate(sig))
	mustRunInstant(t, rt)
	require.NoError(t, rt.Kill(h))

	rt.Register(Emit(sig, 1))
	report := mustRunInstant(t, rt)

	require.Len(t, report.Completed, 1, "the killed waiter must not complete")
	assert.Equal(t, struct{}{}, report.Completed[0].Value)
	assert.False(t, report.StillActive)
}

func TestRuntime_Kill_UnknownHandle(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.Kill(ProcessHandle(12345))

	require.Error(t, err)
	assert.True(t, IsUnknownHandleError(err))
}

func TestRuntime_DeadlockedAwait_AbortsInstant(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("flip"))

	rt.Register(Then(AwaitAbsence(sig), Emit(sig, 1)))

	_, err := rt.RunInstant(context.Background())

	require.Error(t, err)
	assert.True(t, IsDeadlockedAwaitError(err))
	assert.Contains(t, err.Error(), "run instant 0:")
	assert.Contains(t, err.Error(), "flip")
	assert.Equal(t, uint64(0), rt.Instant(), "a failed instant does not advance the counter")
}

func TestRuntime_ResumeAfterTermination_IsFatal(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.stepTask(&task{status: statusDone, token: "zombie"})

	require.Error(t, err)
	assert.True(t, IsResumeAfterTerminationError(err))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "zombie", re.Process)
}

func TestRuntime_ContextCancellationAbortsInstant(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Pause())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.RunInstant(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), rt.Instant())
}

func TestRuntime_RunUntilTerminated_CollectsAllReports(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Register(Then(Pause(), Then(Pause(), Value("done"))))

	reports, err := rt.RunUntilTerminated(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Empty(t, reports[0].Completed)
	assert.Empty(t, reports[1].Completed)
	require.Len(t, reports[2].Completed, 1)
	assert.Equal(t, "done", reports[2].Completed[0].Value)
	assert.False(t, reports[2].StillActive)
	assert.True(t, rt.Quiescent())
}

func TestRuntime_RunUntilTerminated_StopsOnStrandedWaiter(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt, WithSignalName("never"))

	rt.Register(AwaitImmediate(sig))

	reports, err := rt.RunUntilTerminated(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 1, "no future emission can reach the waiter")
	assert.True(t, reports[0].StillActive, "the stranded process is live, just unreachable")
	assert.Equal(t, 1, rt.Live())
}

func TestRuntime_RunUntilTerminated_RunsAbsenceOut(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[string](rt, WithSignalName("alarm"))

	rt.Register(AwaitAbsence(sig))
	rt.Register(Emit(sig, "on"))

	reports, err := rt.RunUntilTerminated(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 2, "the absence waiter needs the follow-up instant")
	require.Len(t, reports[1].Completed, 1)
	assert.False(t, reports[1].StillActive)
}

func TestRuntime_RunUntilTerminated_PropagatesInstantError(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)

	rt.Register(Then(Pause(), Then(AwaitAbsence(sig), Emit(sig, 1))))

	reports, err := rt.RunUntilTerminated(context.Background())

	require.Error(t, err)
	assert.True(t, IsDeadlockedAwaitError(err))
	assert.Len(t, reports, 1, "reports up to the failed instant are returned")
}

func TestRuntime_Quiescent(t *testing.T) {
	rt := newTestRuntime(t)
	sig := NewSignal[int](rt)
	require.True(t, rt.Quiescent())

	rt.Register(Value(1))
	assert.False(t, rt.Quiescent(), "a registered process is scheduled for the next instant")

	mustRunInstant(t, rt)
	assert.True(t, rt.Quiescent())

	rt.Register(AwaitAbsence(sig))
	rt.Register(Emit(sig, 1))
	mustRunInstant(t, rt)
	assert.False(t, rt.Quiescent(), "an outstanding absence waiter can still progress")

	mustRunInstant(t, rt)
	assert.True(t, rt.Quiescent())
}

func TestRuntime_DeterministicReplay(t *testing.T) {
	run := func() ([]TraceEvent, []Report) {
		rec := NewMemoryRecorder()
		rt := newTestRuntime(t,
			WithTokenGenerator(NewFixedGenerator("producer", "consumer")),
			WithRecorder(rec),
		)
		sig, err := NewCombinedSignal(rt, func(a, b int) int { return a + b }, WithSignalName("total"))
		require.NoError(t, err)

		rt.Register(Then(Emit(sig, 1), Then(Pause(), Emit(sig, 2))))
		rt.Register(Repeat(Map(AwaitImmediate(sig), func(v int) int { return v }), 2))

		reports, err := rt.RunUntilTerminated(context.Background())
		require.NoError(t, err)
		return rec.Events(), reports
	}

	events1, reports1 := run()
	events2, reports2 := run()

	assert.Equal(t, events1, events2, "identical graphs must produce identical traces")
	assert.Equal(t, reports1, reports2)
}

func TestRuntime_WithClock_ContinuesNumbering(t *testing.T) {
	rec := NewMemoryRecorder()
	rt := newTestRuntime(t,
		WithClock(NewClockAt(100)),
		WithRecorder(rec),
		WithTokenGenerator(NewFixedGenerator("p")),
	)

	rt.Register(Value(1))
	mustRunInstant(t, rt)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, int64(101), events[0].Seq, "seq numbering continues from the prior trace")
}
