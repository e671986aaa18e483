package recovery

import (
	"fmt"
	"sync"
)

// StrictStrategy fails on the first malformed construct.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and keeps going with repaired or
// partial values. Degraded output (missing text, skipped glyphs) is
// preferred over aborting the run.
type LenientStrategy struct {
	mu   sync.Mutex
	errs []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(err error, location Location) Action {
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("[%s] offset %d obj %d %d: %w",
		location.Component, location.ByteOffset, location.ObjectNum, location.ObjectGen, err))
	s.mu.Unlock()
	return ActionFix
}

// Errors returns everything recovered so far, in encounter order.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
