package syncengine

import "sync"

// syncState is an observable boolean
type syncState struct {
	mu    sync.Mutex
	value bool
	subs  map[chan bool]struct{}
}

func (s *syncState) get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *syncState) set(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == v {
		return
	}
	s.value = v
	for ch := range s.subs {
		publish(ch, v)
	}
}

func (s *syncState) subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[chan bool]struct{})
	}
	s.subs[ch] = struct{}{}
	publish(ch, s.value)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// publish replaces any unread value with v without blocking
func publish(ch chan bool, v bool) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
