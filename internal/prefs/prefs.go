package prefs

import (
	"sync"
)

// ThemeStorage is the durable slot for the theme preference. Implemented by
// store.StateStore.
type ThemeStorage interface {
	DarkTheme() bool
	SetDarkTheme(dark bool) error
}

// Service holds the presentation preference: a single persisted dark-mode
// boolean. Changes publish explicitly to registered subscribers; there is
// no implicit reactivity.
type Service struct {
	storage ThemeStorage

	mu   sync.RWMutex
	dark bool
	subs []func(dark bool)
}

// NewService restores the persisted theme preference
func NewService(storage ThemeStorage) *Service {
	return &Service{
		storage: storage,
		dark:    storage.DarkTheme(),
	}
}

// Dark reports the current preference
func (s *Service) Dark() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dark
}

// Subscribe registers a callback invoked after every applied change
func (s *Service) Subscribe(fn func(dark bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Toggle flips the preference, persists it, and notifies subscribers
func (s *Service) Toggle() {
	s.mu.Lock()
	s.dark = !s.dark
	dark := s.dark
	subs := s.subs
	s.mu.Unlock()

	s.storage.SetDarkTheme(dark)
	for _, fn := range subs {
		fn(dark)
	}
}

// SetDark applies an explicit preference, persists it, and notifies
// subscribers when it changed.
func (s *Service) SetDark(dark bool) {
	s.mu.Lock()
	if s.dark == dark {
		s.mu.Unlock()
		return
	}
	s.dark = dark
	subs := s.subs
	s.mu.Unlock()

	s.storage.SetDarkTheme(dark)
	for _, fn := range subs {
		fn(dark)
	}
}
