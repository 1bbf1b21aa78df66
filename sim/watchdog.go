package sim

import "github.com/go-logr/logr"

// Watchdog is an advisory deadlock detector, spec §5: if the total
// number of in-flight requests across every sub-partition fails to
// decrease for IdleCycles consecutive cycles, something downstream is
// stuck. It only logs; it never aborts the run, since a legitimately
// idle simulation (kernel finished, nothing left to drain) also holds
// pending count steady at zero.
type Watchdog struct {
	idleCyclesAllowed uint64
	logger            logr.Logger

	lastPending  int
	idleCycles   uint64
	everWarned   bool
}

// NewWatchdog builds a Watchdog. idleCyclesAllowed of 0 disables it.
func NewWatchdog(idleCyclesAllowed uint64, logger logr.Logger) *Watchdog {
	return &Watchdog{idleCyclesAllowed: idleCyclesAllowed, logger: logger, lastPending: -1}
}

// Observe records this cycle's total pending-request count.
func (w *Watchdog) Observe(cycle uint64, pending int) {
	if w.idleCyclesAllowed == 0 || pending == 0 {
		w.idleCycles = 0
		w.lastPending = pending
		return
	}

	if w.lastPending >= 0 && pending >= w.lastPending {
		w.idleCycles++
	} else {
		w.idleCycles = 0
	}
	w.lastPending = pending

	if w.idleCycles >= w.idleCyclesAllowed && !w.everWarned {
		w.everWarned = true
		w.logger.Info("no forward progress on pending memory requests",
			"cycle", cycle, "pendingRequests", pending, "idleCycles", w.idleCycles)
	}
}
