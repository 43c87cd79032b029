package repository

// Option applies a configuration option to a MemStore.
type Option func(*MemStore)

// WithMaxTxnRetries overrides how many optimistic retries an update
// attempts before reporting ErrConflict.
func WithMaxTxnRetries(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}
