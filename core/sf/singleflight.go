package sf

import "golang.org/x/sync/singleflight"

// Singleflight collapses concurrent calls with the same key into one
// execution. The first caller runs the function; others wait and receive
// the same result.
type Singleflight[T any] struct {
	group singleflight.Group
}

// New creates a Singleflight for type T.
func New[T any]() *Singleflight[T] {
	return &Singleflight[T]{}
}

// Do executes fn for the given key, deduplicating concurrent calls. If a
// call is already in flight for the key, Do blocks until it completes and
// returns its result. fn runs at most once per key at any given time.
func (s *Singleflight[T]) Do(key string, fn func() (*T, error)) (*T, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// Forget drops any recorded in-flight call for the key, so the next Do
// starts a fresh execution instead of joining an old one.
func (s *Singleflight[T]) Forget(key string) {
	s.group.Forget(key)
}
