package pipeline

import "sort"

// WarpIssuer attempts to issue an instruction into the correct
// pipeline register set on behalf of a scheduler, spec §4.6.
type WarpIssuer interface {
	// CanIssue reports whether inst may enter the target register set
	// for schedulerID right now. The scheduler checks the scoreboard
	// itself before calling it; Core's implementation checks only for a
	// free ID_OC slot and does not consult the functional units.
	CanIssue(schedulerID int, inst *WarpInstruction) bool
	// Issue performs the issue, moving inst into the target register
	// set. Returns false if it could not (should not happen if
	// CanIssue just returned true, but races with other schedulers in
	// the same cycle are possible in non-sub-core mode).
	Issue(schedulerID int, inst *WarpInstruction) bool
}

// SchedulerPolicy selects a WarpScheduler's ordering discipline, spec
// §4.6.
type SchedulerPolicy int

// Scheduler policies.
const (
	LRR SchedulerPolicy = iota
	GTO
	TwoLevelActive
)

// WarpScheduler orders its supervised warps each cycle and attempts
// to issue from the highest-priority issuable one. Spec §4.6.
// Grounded on spec.md directly; GTO's oldest-first fallback follows
// _examples/original_source/src/scheduler/gto.rs.
type WarpScheduler struct {
	ID     int
	Policy SchedulerPolicy

	supervised []*Warp
	priority   []*Warp

	maxIssuePerCycle int

	// lrrCursor is LRR's round-robin rotation point: the index (into
	// supervised) of the warp to offer first next cycle.
	lrrCursor int

	// gtoCurrent is GTO's "keep issuing the currently selected warp"
	// state.
	gtoCurrent *Warp

	// two-level active pool state.
	activePool    []*Warp
	activePoolCap int
}

// NewWarpScheduler builds a WarpScheduler with the given policy.
func NewWarpScheduler(id int, policy SchedulerPolicy, maxIssuePerCycle int) *WarpScheduler {
	return &WarpScheduler{ID: id, Policy: policy, maxIssuePerCycle: maxIssuePerCycle, activePoolCap: 8}
}

// Supervise adds warps this scheduler is responsible for ordering.
func (s *WarpScheduler) Supervise(warps ...*Warp) {
	s.supervised = append(s.supervised, warps...)
}

// Supervised returns the warps currently assigned to this scheduler,
// excluding those that have finished issuing all instructions. Used by
// the core to decide whether it can accept another block, spec §4.9.
func (s *WarpScheduler) Supervised() []*Warp {
	live := s.supervised[:0:0]
	for _, w := range s.supervised {
		if !w.Done() {
			live = append(live, w)
		}
	}
	s.supervised = live
	return live
}

// OrderWarps rebuilds the priority list for this cycle, per policy.
// Spec §9 design note: "priority as an explicit list rebuilt each
// cycle; do not rely on hash or insertion order."
func (s *WarpScheduler) OrderWarps() {
	switch s.Policy {
	case LRR:
		s.orderLRR()
	case GTO:
		s.orderGTO()
	case TwoLevelActive:
		s.orderTwoLevel()
	}
}

func (s *WarpScheduler) orderLRR() {
	n := len(s.supervised)
	s.priority = s.priority[:0]
	if n == 0 {
		return
	}
	if s.lrrCursor >= n {
		s.lrrCursor = 0
	}
	for i := 0; i < n; i++ {
		s.priority = append(s.priority, s.supervised[(s.lrrCursor+i)%n])
	}
}

func (s *WarpScheduler) orderGTO() {
	if s.gtoCurrent != nil && s.gtoCurrent.Issuable() {
		s.priority = append(s.priority[:0], s.gtoCurrent)
		for _, w := range s.supervised {
			if w != s.gtoCurrent {
				s.priority = append(s.priority, w)
			}
		}
		return
	}
	s.priority = append(s.priority[:0], s.supervised...)
	sort.SliceStable(s.priority, func(i, j int) bool {
		return s.priority[i].DynamicID < s.priority[j].DynamicID
	})
}

func (s *WarpScheduler) orderTwoLevel() {
	// Admit non-stalled warps into the active pool up to its cap;
	// warps leave when done or waiting on a barrier (spec §4.6's
	// "long-latency events" stand-in for this trace-driven model,
	// where the only externally visible stall is a barrier wait).
	kept := s.activePool[:0]
	for _, w := range s.activePool {
		if w.Issuable() {
			kept = append(kept, w)
		}
	}
	s.activePool = kept
	for _, w := range s.supervised {
		if len(s.activePool) >= s.activePoolCap {
			break
		}
		if !w.Issuable() {
			continue
		}
		if !containsWarp(s.activePool, w) {
			s.activePool = append(s.activePool, w)
		}
	}
	s.priority = append(s.priority[:0], s.activePool...)
}

func containsWarp(pool []*Warp, w *Warp) bool {
	for _, p := range pool {
		if p == w {
			return true
		}
	}
	return false
}

// Cycle attempts to issue up to maxIssuePerCycle instructions from the
// highest-priority issuable warp into the appropriate register set via
// issuer. Spec §4.6: once a warp is chosen it keeps issuing from
// itself (not the next warp in priority order) until it stalls, runs
// out of budget, or hits one it cannot issue; only then does Cycle
// give up for the cycle rather than falling through to the next warp.
func (s *WarpScheduler) Cycle(scoreboard *Scoreboard, issuer WarpIssuer) int {
	s.OrderWarps()

	issued := 0
	for _, w := range s.priority {
		if !w.Issuable() {
			continue
		}

		for issued < s.maxIssuePerCycle && w.Issuable() {
			inst := w.Next()
			if inst == nil {
				break
			}
			if !scoreboard.CanIssue(inst) {
				break
			}
			if !issuer.CanIssue(s.ID, inst) {
				break
			}

			inst.SchedulerID = s.ID
			if !issuer.Issue(s.ID, inst) {
				break
			}
			scoreboard.Reserve(inst)
			w.Advance()

			switch s.Policy {
			case GTO:
				s.gtoCurrent = w
			case LRR:
				for i, sup := range s.supervised {
					if sup == w {
						s.lrrCursor = (i + 1) % len(s.supervised)
						break
					}
				}
			}

			issued++
		}

		// Whether or not anything issued, the cycle's attempt stops at
		// the highest-priority issuable warp: a stall there is not a
		// license to skip ahead to the next one.
		break
	}
	return issued
}
