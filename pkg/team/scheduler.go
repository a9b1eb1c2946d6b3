package team

// Scheduler implements the C3 turn-taking algorithm of spec.md §4.1: a
// single-threaded, cooperative round-robin with per-agent consecutive-turn
// quotas and handoff-forced rotation.
type Scheduler struct {
	agents           []Agent
	currentIdx       int
	consecutiveTurns map[string]int
	maxTurns         map[string]int
}

// NewScheduler builds a Scheduler over agents in roster order. defaultMaxTurns
// applies to any agent whose MaxConsecutiveTurns() is zero (spec.md §15's
// per-agent max_consecutive_turns override).
func NewScheduler(agents []Agent, defaultMaxTurns int) *Scheduler {
	maxTurns := make(map[string]int, len(agents))
	for _, a := range agents {
		m := a.MaxConsecutiveTurns()
		if m <= 0 {
			m = defaultMaxTurns
		}
		maxTurns[a.Name()] = m
	}
	return &Scheduler{
		agents:           agents,
		consecutiveTurns: make(map[string]int, len(agents)),
		maxTurns:         maxTurns,
	}
}

// NextAgent returns the agent that should take the next step, advancing
// internal rotation state exactly per spec.md §4.1's algorithm.
func (s *Scheduler) NextAgent() Agent {
	cur := s.agents[s.currentIdx]
	name := cur.Name()
	t := s.consecutiveTurns[name]
	m := s.maxTurns[name]

	if t == 0 || t < m {
		s.consecutiveTurns[name] = t + 1
		return cur
	}

	s.currentIdx = (s.currentIdx + 1) % len(s.agents)
	next := s.agents[s.currentIdx]
	s.consecutiveTurns[next.Name()] = 1
	return next
}

// SignalHandoff forces rotation away from a on the next NextAgent call by
// exhausting its remaining quota.
func (s *Scheduler) SignalHandoff(a Agent) {
	s.consecutiveTurns[a.Name()] = s.maxTurns[a.Name()]
}

// SignalRetry accounts for retried model calls. Retries count toward the
// quota at most once per step, per spec.md §4.1 ("add min(k, 1)").
func (s *Scheduler) SignalRetry(a Agent, retries int) {
	if retries > 0 {
		s.consecutiveTurns[a.Name()]++
	}
}

// RemainingTurns is max(0, max_turns[a] - consecutive_turns[a]).
func (s *Scheduler) RemainingTurns(a Agent) int {
	r := s.maxTurns[a.Name()] - s.consecutiveTurns[a.Name()]
	if r < 0 {
		return 0
	}
	return r
}

// EffectiveMaxRequeries caps a's configured max_requeries to its remaining
// turns, and to 1 on its last allowed turn (spec.md §4.1, invariant 10:
// never negative, never exceeding RemainingTurns).
func (s *Scheduler) EffectiveMaxRequeries(a Agent) int {
	remaining := s.RemainingTurns(a)
	eff := a.MaxRequeriesConfigured()
	if remaining < eff {
		eff = remaining
	}
	if remaining <= 1 && eff > 1 {
		eff = 1
	}
	if eff < 0 {
		eff = 0
	}
	return eff
}

// CurrentIndex exposes the roster index of the agent most recently returned
// by NextAgent.
func (s *Scheduler) CurrentIndex() int { return s.currentIdx }
