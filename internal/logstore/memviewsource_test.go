package logstore

// memViewSource is a test-only ViewSource driven explicitly by test
// code via Push, standing in for the real coordination-service watch.
type memViewSource struct {
	events chan ViewEvent
}

func newMemViewSource() *memViewSource {
	return &memViewSource{events: make(chan ViewEvent, 16)}
}

func (s *memViewSource) Watch() <-chan ViewEvent {
	return s.events
}

func (s *memViewSource) Close() error {
	close(s.events)
	return nil
}

func (s *memViewSource) PushCreated(v View) {
	s.events <- ViewEvent{Created: &v}
}

func (s *memViewSource) PushFinalized(fv FinalizedView) {
	s.events <- ViewEvent{Finalized: &fv}
}
