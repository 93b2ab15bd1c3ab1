package race

import "sync/atomic"

// StopSignal tells every worker that a sibling already succeeded. It latches:
// the first Trip wins and there is no transition back for the life of a race.
type StopSignal struct {
	tripped atomic.Bool
}

func NewStopSignal() *StopSignal { return &StopSignal{} }

// Trip sets the signal and reports whether this call was the one that set it.
func (s *StopSignal) Trip() bool { return s.tripped.CompareAndSwap(false, true) }

// Tripped reports whether any worker has succeeded.
func (s *StopSignal) Tripped() bool { return s.tripped.Load() }
