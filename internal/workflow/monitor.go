package workflow

import (
	"github.com/ductwork/ductwork/internal/graph"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Monitor is a step whose liveness is derived from the status of other
// steps it watches, rather than from work of its own. Its CheckStatus
// implements the check_watched_steps policy from §4.6; Run is left at
// BaseStep's no-op default since a Monitor's "work" is entirely the status
// aggregation performed on the polling path.
type Monitor struct {
	BaseStep

	watches  []Step
	watchAll bool
	ranOnce  bool
}

// NewMonitor constructs a Monitor. Combining watchAll with an explicit,
// non-empty watch list is a construction-time error.
func NewMonitor(name string, watchAll bool, watches []Step) (*Monitor, error) {
	if watchAll && len(watches) > 0 {
		return nil, streamyerrors.NewValidationError("watches", "watch_all cannot be combined with an explicit watches list", nil)
	}
	return &Monitor{
		BaseStep: NewBaseStep(name),
		watchAll: watchAll,
		watches:  append([]Step(nil), watches...),
	}, nil
}

// References extends BaseStep's implicit dependencies with the watches
// reference-list, carried as non-order-affecting edges: a Monitor must never
// gate the execution order of what it watches.
func (m *Monitor) References() []graph.Edge {
	edges := m.BaseStep.References()
	for _, w := range m.watches {
		edges = append(edges, graph.Edge{Attr: "watches", Target: w, AffectsExecutionOrder: false})
	}
	return edges
}

// Watches returns the current watch list (after any watch_all discovery).
func (m *Monitor) Watches() []Step { return append([]Step(nil), m.watches...) }

// WatchAll reports whether the monitor is (still) configured to discover
// its watch list lazily.
func (m *Monitor) WatchAll() bool { return m.watchAll }

// CheckStatus implements the §4.6 aggregation policy.
func (m *Monitor) CheckStatus() error {
	st := m.StepStatus()
	exec := m.GetExecutor()

	if exec != nil {
		if le := exec.LastExecution(); le != nil && le.Aborted() {
			st.SetFinished()
			return nil
		}
	}

	if st.Pending() {
		return nil
	}

	if m.watchAll && len(m.watches) == 0 {
		m.watches = m.discoverWatchTargets()
		if len(m.watches) == 0 {
			m.watchAll = false
		}
	}

	if len(m.watches) == 0 {
		if !m.ranOnce {
			m.ranOnce = true
			st.SetValidated()
			return nil
		}
		st.SetFinished()
		return nil
	}

	return m.evaluateWatches(st)
}

// discoverWatchTargets populates a lazily-discovered watch_all list: every
// step in the executor's current execution except the monitor itself, any
// other Monitor, and anything already in the monitor's own execution-
// reference subtree (watching one's own dependency chain would just
// duplicate information the scheduler already tracks).
func (m *Monitor) discoverWatchTargets() []Step {
	exec := m.GetExecutor()
	if exec == nil {
		return nil
	}
	le := exec.LastExecution()
	if le == nil {
		return nil
	}

	ownSubtree := map[Step]bool{}
	if refs, err := graph.AllReferences(graph.Node(m), true); err == nil {
		for _, r := range refs {
			if s, ok := r.(Step); ok {
				ownSubtree[s] = true
			}
		}
	}

	self := Step(m)
	var out []Step
	for _, s := range le.AllSteps() {
		if s == self {
			continue
		}
		if _, isMonitor := s.(*Monitor); isMonitor {
			continue
		}
		if ownSubtree[s] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *Monitor) evaluateWatches(st *Status) error {
	anyFailed := false
	anyRunning := false
	allFinished := true

	for _, w := range m.watches {
		failed, running, finished := subtreeStatus(w)
		if failed {
			anyFailed = true
		}
		if running {
			anyRunning = true
		}
		if !finished {
			allFinished = false
		}
	}

	switch {
	case anyFailed:
		st.SetFinished()
	case anyRunning:
		st.SetValidated()
	case allFinished:
		st.SetFinished()
	default:
		st.SetRunning()
	}
	return nil
}

// subtreeStatus inspects root and every step reachable through its
// order-affecting dependency chain, reporting whether any member has
// failed, whether any is still running, and whether every member has
// finished.
func subtreeStatus(root Step) (failed, running, allFinished bool) {
	members := []Step{root}
	if refs, err := graph.AllReferences(graph.Node(root), true); err == nil {
		for _, r := range refs {
			if s, ok := r.(Step); ok {
				members = append(members, s)
			}
		}
	} else {
		// A cycle or depth violation here would already have surfaced when
		// the graph was first built; treat it conservatively as a failure
		// rather than silently ignoring it.
		return true, false, false
	}

	allFinished = true
	for _, s := range members {
		switch s.StepStatus().Get().Kind {
		case StageFailed:
			failed = true
			allFinished = false
		case StageRunning:
			running = true
			allFinished = false
		case StageFinished:
		default:
			allFinished = false
		}
	}
	return failed, running, allFinished
}

// MonitorStarter is a helper step that waits for a fixed set of monitors to
// leave the working set (started running, or failed) before reporting its
// own completion, surfacing the first monitor failure if any. The wait is
// implemented on the polling path (CheckStatus), consistent with how every
// other long-running step in this package reports completion.
type MonitorStarter struct {
	BaseStep

	monitors []*Monitor
}

// NewMonitorStarter constructs a MonitorStarter over the given monitors.
func NewMonitorStarter(name string, monitors []*Monitor) *MonitorStarter {
	return &MonitorStarter{BaseStep: NewBaseStep(name), monitors: append([]*Monitor(nil), monitors...)}
}

// CheckStatus waits until every configured monitor is no longer
// Pending/Validated, then finishes (or fails, surfacing the first monitor
// failure encountered).
func (ms *MonitorStarter) CheckStatus() error {
	allStarted := true
	var firstFailure error

	for _, m := range ms.monitors {
		switch m.StepStatus().Get().Kind {
		case StagePending, StageValidated:
			allStarted = false
		case StageFailed:
			if firstFailure == nil {
				firstFailure = m.StepStatus().Cause()
			}
		}
	}

	if !allStarted {
		return nil
	}
	if firstFailure != nil {
		return firstFailure
	}
	ms.StepStatus().SetFinished()
	return nil
}
