package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulse/internal/spec"
)

func TestChain_Sequential_OrderAndTrailingArgs(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "one", "two", "three", "end")

	a, err := e.To(spec.Names("one", "two", "three"), "A", "B", "C")
	require.NoError(t, err)
	assert.Empty(t, rec.calls, "sequential chains emit on a later turn")
	assert.Equal(t, StateDraining, a.State())

	run(t, l)

	assert.Equal(t, []string{"one", "two", "three", "end"}, rec.events())
	for _, c := range rec.calls {
		assert.Same(t, a, c.artery)
		assert.Equal(t, []any{"A", "B", "C"}, c.args, c.event)
	}
	assert.True(t, a.Ended())
	assert.Equal(t, "chain-1", a.Token)
}

func TestChain_Sequential_NoSubscriptionsLeft(t *testing.T) {
	e, l := newTestEmitter(t)

	_, err := e.To(spec.Names("one", "two"))
	require.NoError(t, err)
	assert.Equal(t, 1, e.Bus().CountInternal("one"))
	assert.Equal(t, 1, e.Bus().CountInternal("end"))

	run(t, l)

	assert.Equal(t, 0, e.Bus().CountInternal("one"))
	assert.Equal(t, 0, e.Bus().CountInternal("two"))
	assert.Equal(t, 0, e.Bus().CountInternal("end"))
}

func TestChain_StepRepeat(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "one", "two", "three", "end")

	cs := spec.List(spec.Name("one"), spec.StepSpec{Name: "two", Repeat: 5}, spec.Name("three"))
	_, err := e.To(cs)
	require.NoError(t, err)
	run(t, l)

	assert.Equal(t, []string{"one", "two", "two", "two", "two", "two", "three", "end"}, rec.events())

	var counts []int
	for _, c := range rec.calls {
		if c.event == "two" {
			counts = append(counts, c.pulse.Count)
			assert.Equal(t, 5, c.pulse.Repeat)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, counts)
}

func TestChain_ChainRepeat_Rinses(t *testing.T) {
	obs := &countingObserver{}
	e, l := newTestEmitter(t, WithObserver(obs))
	rec := &recorder{}
	rec.listen(e, "a", "b", "end")

	cs := spec.Names("a", "b")
	cs.Repeat = 3
	a, err := e.To(cs)
	require.NoError(t, err)

	a.Data["seen"] = 0
	e.At("a", func(a *Artery, _ *Pulse, _ ...any) error {
		a.Data["seen"] = a.Data["seen"].(int) + 1
		return nil
	})

	run(t, l)

	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b", "end"}, rec.events())
	assert.Equal(t, 1, rec.count("end"))
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 2, obs.rinses)
	assert.Equal(t, 1, obs.ends)
	assert.Equal(t, 3, a.Data["seen"], "scratch data survives rinses")
	for _, c := range rec.calls {
		assert.Same(t, a, c.artery, "artery identity is stable across passes")
	}
}

func TestChain_EndTwice_NoEffect(t *testing.T) {
	obs := &countingObserver{}
	e, l := newTestEmitter(t, WithObserver(obs))
	rec := &recorder{}
	rec.listen(e, "one", "end")

	a, err := e.To(spec.Names("one"))
	require.NoError(t, err)
	run(t, l)
	require.True(t, a.Ended())

	require.NoError(t, e.Emit("end", a))
	require.NoError(t, e.Emit("end", a))
	run(t, l)

	assert.Equal(t, 1, obs.ends)
	assert.Equal(t, 0, e.Bus().CountInternal("end"))
	assert.Equal(t, StateCompleted, a.State())
}

func TestChain_Isolation(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "one", "two", "end")

	a1, err := e.To(spec.Names("one", "two"), "first")
	require.NoError(t, err)
	a2, err := e.To(spec.Names("one", "two"), "second")
	require.NoError(t, err)
	require.NotSame(t, a1, a2)

	run(t, l)

	assert.Equal(t, []string{"one", "two", "end"}, rec.eventsFor(a1))
	assert.Equal(t, []string{"one", "two", "end"}, rec.eventsFor(a2))
	for _, c := range rec.calls {
		switch c.artery {
		case a1:
			assert.Equal(t, []any{"first"}, c.args)
		case a2:
			assert.Equal(t, []any{"second"}, c.args)
		default:
			t.Fatalf("listener saw unknown artery %p", c.artery)
		}
	}
}

func TestChain_Isolation_ForeignArteryIgnored(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "one", "end")

	a1, err := e.To(spec.Names("one"))
	require.NoError(t, err)
	a2, err := e.To(spec.Names("slow"))
	require.NoError(t, err)

	// a2's artery on a1's event name must not drain a1.
	require.NoError(t, e.Emit("one", a2))
	assert.Equal(t, 1, e.Bus().CountInternal("one"))

	run(t, l)
	assert.True(t, a1.Ended())
	assert.True(t, a2.Ended())
}

func TestChain_PassBuffer_Immediate(t *testing.T) {
	e, _ := newTestEmitter(t)

	e.At("two", func(a *Artery, _ *Pulse, _ ...any) error {
		a.PassOn("x", "y")
		return nil
	})
	var got []any
	passAfter := -1
	e.At("three", func(a *Artery, _ *Pulse, args ...any) error {
		got = args
		passAfter = len(a.Pass)
		return nil
	})

	cs := spec.Names("one", "two", "three")
	cs.Mode = spec.ModeImmediate
	a, err := e.To(cs)
	require.NoError(t, err)

	assert.Equal(t, []any{"x", "y"}, got)
	assert.Equal(t, 0, passAfter)
	assert.Empty(t, a.Pass)
	assert.True(t, a.Ended(), "all-immediate chains complete inside To")
}

func TestChain_PassBuffer_SequentialPrependsToTrailing(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "two", "three")

	e.At("one", func(a *Artery, _ *Pulse, _ ...any) error {
		a.PassOn(42)
		return nil
	})

	_, err := e.To(spec.Names("one", "two", "three"), "T")
	require.NoError(t, err)
	run(t, l)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, []any{42, "T"}, rec.calls[0].args)
	assert.Equal(t, []any{"T"}, rec.calls[1].args, "pass values are forwarded once")
}

func TestChain_Concurrent_OutOfOrderCompletion(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "end")

	releases := map[string]Release{}
	for _, name := range []string{"a", "b"} {
		e.At(name, func(_ *Artery, p *Pulse, _ ...any) error {
			releases[name] = p.Hold()
			return nil
		})
	}

	cs := spec.Names("a", "b")
	cs.Mode = spec.ModeConcurrent
	a, err := e.To(cs)
	require.NoError(t, err)
	run(t, l)
	require.Len(t, releases, 2, "both steps of the wave are emitted before either completes")

	releases["b"](nil)
	run(t, l)
	assert.Equal(t, 0, rec.count("end"))
	assert.False(t, a.Ended())

	releases["a"](nil)
	run(t, l)
	assert.Equal(t, 1, rec.count("end"))
	assert.True(t, a.Ended())
}

func TestChain_Concurrent_AllReleaseOrders(t *testing.T) {
	names := []string{"a", "b", "c"}

	for _, order := range permutations(len(names)) {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			e, l := newTestEmitter(t)
			rec := &recorder{}
			rec.listen(e, "a", "b", "c", "gate", "end")

			releases := map[string]Release{}
			for _, name := range names {
				e.At(name, func(_ *Artery, p *Pulse, _ ...any) error {
					releases[name] = p.Hold()
					return nil
				})
			}

			cs := spec.List(
				spec.StepSpec{Name: "a", Mode: spec.ModeConcurrent},
				spec.StepSpec{Name: "b", Mode: spec.ModeConcurrent},
				spec.StepSpec{Name: "c", Mode: spec.ModeConcurrent},
				spec.StepSpec{Name: "gate", Mode: spec.ModeSequential},
			)
			a, err := e.To(cs)
			require.NoError(t, err)
			run(t, l)
			require.Equal(t, []string{"a", "b", "c"}, rec.events())

			for i, idx := range order {
				releases[names[idx]](nil)
				run(t, l)
				if i < len(order)-1 {
					assert.Equal(t, 0, rec.count("gate"), "gate must wait for the whole wave")
				}
			}

			assert.Equal(t, []string{"a", "b", "c", "gate", "end"}, rec.events())
			assert.True(t, a.Ended())
		})
	}
}

func TestChain_Waves(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "a", "b", "c", "d", "e", "end")

	held := map[string]Release{}
	hold := func(name string) {
		e.At(name, func(_ *Artery, p *Pulse, _ ...any) error {
			held[name] = p.Hold()
			return nil
		})
	}
	hold("a")
	hold("b")
	hold("d")

	cs := spec.List(
		spec.StepSpec{Name: "a", Mode: spec.ModeConcurrent},
		spec.StepSpec{Name: "b", Mode: spec.ModeConcurrent},
		spec.StepSpec{Name: "c", Mode: spec.ModeSequential},
		spec.StepSpec{Name: "d", Mode: spec.ModeConcurrent},
		spec.StepSpec{Name: "e", Mode: spec.ModeConcurrent},
	)
	_, err := e.To(cs)
	require.NoError(t, err)

	run(t, l)
	assert.Equal(t, []string{"a", "b"}, rec.events())

	held["a"](nil)
	held["b"](nil)
	run(t, l)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, rec.events(), "c drains, then d and e go out together")

	held["d"](nil)
	run(t, l)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "end"}, rec.events())
}

func TestChain_OutOfBandBeforeWaveRuns(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "a", "b", "c", "end")

	cs := spec.Names("a", "b", "c")
	cs.Mode = spec.ModeConcurrent
	a, err := e.To(cs)
	require.NoError(t, err)

	// b completes out of band before the wave's emissions run.
	require.NoError(t, e.Emit("b", a))
	assert.Equal(t, 0, e.Bus().CountInternal("b"))

	run(t, l)

	assert.Equal(t, []string{"b", "a", "c", "end"}, rec.events(), "the deferred emission of b is skipped")
	assert.Nil(t, rec.calls[0].pulse)
	assert.True(t, a.Ended())
}

func TestChain_OutOfBandCountsTowardsRepeat(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "two", "end")

	e.At("one", func(a *Artery, _ *Pulse, _ ...any) error {
		return e.Emit("two", a)
	})

	cs := spec.List(spec.Name("one"), spec.StepSpec{Name: "two", Repeat: 3})
	_, err := e.To(cs)
	require.NoError(t, err)
	run(t, l)

	assert.Equal(t, []string{"two", "two", "two", "end"}, rec.events())
	assert.Nil(t, rec.calls[0].pulse)
	assert.Equal(t, 1, rec.calls[1].pulse.Count)
	assert.Equal(t, 2, rec.calls[2].pulse.Count)
}

func TestChain_RepeatedStepNames(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "ping", "pong", "end")

	_, err := e.To(spec.Names("ping", "pong", "ping"))
	require.NoError(t, err)
	run(t, l)

	assert.Equal(t, []string{"ping", "pong", "ping", "end"}, rec.events())
	var idx []int
	for _, c := range rec.calls {
		idx = append(idx, c.pulse.Index)
	}
	assert.Equal(t, []int{0, 1, 2, -1}, idx)
}

func TestChain_Immediate_RepeatIsSynchronous(t *testing.T) {
	e, _ := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "x", "end")

	cs := spec.List(spec.StepSpec{Name: "x", Mode: "sync", Repeat: 3})
	cs.Mode = spec.ModeImmediate
	a, err := e.To(cs)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x", "x", "end"}, rec.events())
	assert.True(t, a.Ended())
}

func TestChain_MixedImmediateEndsDeferred(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "x", "y", "end")

	cs := spec.List(spec.StepSpec{Name: "x", Mode: spec.ModeImmediate}, spec.Name("y"))
	a, err := e.To(cs)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, rec.events())

	run(t, l)
	assert.Equal(t, []string{"x", "y", "end"}, rec.events())
	assert.True(t, a.Ended())
}

func TestChain_EarlyTermination(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "a", "c", "end")

	var surfaced []any
	e.On("error", func(args ...any) error {
		surfaced = args
		return nil
	})
	stop := fmt.Errorf("stop here")
	e.At("b", func(a *Artery, _ *Pulse, _ ...any) error {
		return e.EmitError(stop, ErrorOptions{End: true, Args: []any{a}})
	})

	a, err := e.To(spec.Names("a", "b", "c"))
	require.NoError(t, err)
	run(t, l)

	assert.Equal(t, []string{"a", "end"}, rec.events())
	assert.True(t, a.Ended())
	require.Len(t, surfaced, 2)
	assert.Equal(t, stop, surfaced[0])
	assert.Same(t, a, surfaced[1])
	assert.Equal(t, 0, e.Bus().CountInternal("b"))
	assert.Equal(t, 0, e.Bus().CountInternal("c"))
}

func TestChain_EmptyChain(t *testing.T) {
	obs := &countingObserver{}
	e, l := newTestEmitter(t, WithObserver(obs))
	rec := &recorder{}
	rec.listen(e, "end")

	a, err := e.To(spec.ChainSpec{}, "tail")
	require.NoError(t, err)

	require.Len(t, rec.calls, 1, "end fires synchronously")
	assert.Same(t, a, rec.calls[0].artery)
	assert.Equal(t, []any{"tail"}, rec.calls[0].args)
	assert.True(t, a.Ended())
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, e.Bus().CountInternal("end"))
	assert.Equal(t, 1, obs.ends)
}

func TestChain_ReservedName_Unwinds(t *testing.T) {
	e, _ := newTestEmitter(t)

	a, err := e.To(spec.Names("one", "two", "end"))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, IsReservedEventNameError(err))

	var re *ReservedEventNameError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Index)

	assert.Equal(t, 0, e.Bus().CountInternal("one"))
	assert.Equal(t, 0, e.Bus().CountInternal("two"))
	assert.Equal(t, 0, e.Bus().CountInternal("end"))
}

func TestChain_ReservedName_FollowsConfig(t *testing.T) {
	e, l := newTestEmitter(t, WithEndEvent("done"))

	_, err := e.To(spec.Names("done"))
	assert.True(t, IsReservedEventNameError(err))

	a, err := e.To(spec.Names("end"))
	require.NoError(t, err)
	run(t, l)
	assert.True(t, a.Ended())
}

func TestChain_MissingName_Unwinds(t *testing.T) {
	e, _ := newTestEmitter(t)

	_, err := e.To(spec.Names("one", " "))
	require.Error(t, err)
	assert.True(t, spec.IsMissingEventNameError(err))
	assert.Equal(t, 0, e.Bus().CountInternal("one"))
}

func TestChain_DoesNotMutateCallerSpec(t *testing.T) {
	e, l := newTestEmitter(t)

	cs := spec.List(spec.StepSpec{Name: " one ", Repeat: 0})
	_, err := e.To(cs)
	require.NoError(t, err)
	run(t, l)

	assert.Equal(t, spec.StepSpec{Name: " one ", Repeat: 0}, cs.Steps[0])
}

func TestChain_RawEmissionIgnored(t *testing.T) {
	e, l := newTestEmitter(t)
	rec := &recorder{}
	rec.listen(e, "one")

	a, err := e.To(spec.Names("one"))
	require.NoError(t, err)

	require.NoError(t, e.Emit("one", "not", "a", "chain"))
	assert.Empty(t, rec.calls, "At listeners skip emissions without an artery")
	assert.Equal(t, 1, e.Bus().CountInternal("one"))

	run(t, l)
	assert.True(t, a.Ended())
}

func TestChain_SchedulerStopped(t *testing.T) {
	e, l := newTestEmitter(t)
	l.Stop()

	_, err := e.To(spec.Names("one"))
	assert.ErrorIs(t, err, ErrSchedulerStopped)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "building", StateBuilding.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "State(9)", State(9).String())
}
