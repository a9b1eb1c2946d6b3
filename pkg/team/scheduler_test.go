package team

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAgent(name string) *mockAgent {
	return &mockAgent{name: name, maxRequeries: 3}
}

// S1: Team = [A(M=2), B(M=2)], expected sequence A,A,B,B,A,A,B,B.
func TestSchedulerRotationFairness(t *testing.T) {
	a := newTestAgent("A")
	b := newTestAgent("B")
	s := NewScheduler([]Agent{a, b}, 2)

	var seq []string
	for i := 0; i < 8; i++ {
		seq = append(seq, s.NextAgent().Name())
	}

	require.Equal(t, []string{"A", "A", "B", "B", "A", "A", "B", "B"}, seq)
}

// Invariant 1: for K*N*M non-handoff steps, each agent takes exactly K*M steps.
func TestSchedulerRotationFairnessGeneralized(t *testing.T) {
	agents := []Agent{newTestAgent("A"), newTestAgent("B"), newTestAgent("C")}
	const M = 3
	const K = 4
	s := NewScheduler(agents, M)

	counts := map[string]int{}
	for i := 0; i < K*len(agents)*M; i++ {
		counts[s.NextAgent().Name()]++
	}

	for _, a := range agents {
		require.Equal(t, K*M, counts[a.Name()], "agent %s", a.Name())
	}
}

// Invariant 2 / S2: handoff forces rotation on the very next call.
func TestSchedulerHandoffForcesRotation(t *testing.T) {
	a := newTestAgent("A")
	b := newTestAgent("B")
	s := NewScheduler([]Agent{a, b}, 5)

	require.Equal(t, "A", s.NextAgent().Name())
	require.Equal(t, "A", s.NextAgent().Name())

	s.SignalHandoff(a)
	require.Equal(t, "B", s.NextAgent().Name(), "handoff must force rotation to the next agent")

	require.Equal(t, 0, s.RemainingTurns(a), "handed-off agent has no turns left until it rotates back around")
}

func TestSchedulerSignalRetryCountsAtMostOncePerStep(t *testing.T) {
	a := newTestAgent("A")
	b := newTestAgent("B")
	s := NewScheduler([]Agent{a, b}, 5)

	s.NextAgent()
	before := s.RemainingTurns(a)
	s.SignalRetry(a, 4)
	require.Equal(t, before-1, s.RemainingTurns(a), "retries count toward quota at most once regardless of k")

	s.SignalRetry(a, 0)
	require.Equal(t, before-1, s.RemainingTurns(a), "zero retries must not advance the quota")
}

// Invariant 10: effective max_requeries never exceeds remaining turns and is >= 0.
func TestSchedulerEffectiveMaxRequeriesCap(t *testing.T) {
	a := newTestAgent("A")
	a.maxRequeries = 10
	b := newTestAgent("B")
	s := NewScheduler([]Agent{a, b}, 2)

	s.NextAgent() // consecutiveTurns[A] = 1, remaining = 1
	eff := s.EffectiveMaxRequeries(a)
	require.LessOrEqual(t, eff, s.RemainingTurns(a))
	require.GreaterOrEqual(t, eff, 0)
	require.LessOrEqual(t, eff, 1, "last allowed turn caps effective requeries at 1")

	s.SignalHandoff(a) // exhausts A's quota entirely
	eff = s.EffectiveMaxRequeries(a)
	require.Equal(t, 0, eff)
}
