package executor

import "github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"

// Predicate decides whether a document may be ranked. Implementations must be
// safe to call from several goroutines. Match runs while the engine's read
// lock is held, so it must not call Engine methods that lock (Document,
// WordFrequencies, AddDocument and the like); a waiting writer would
// deadlock the query.
type Predicate interface {
	Match(id int, status indexer.Status, rating int) bool
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(id int, status indexer.Status, rating int) bool

func (f PredicateFunc) Match(id int, status indexer.Status, rating int) bool {
	return f(id, status, rating)
}

// StatusFilter keeps documents with exactly this status.
type StatusFilter indexer.Status

func (s StatusFilter) Match(_ int, status indexer.Status, _ int) bool {
	return status == indexer.Status(s)
}

type options struct {
	predicate Predicate
	policy    indexer.Policy
}

type Option func(*options)

// WithStatus ranks only documents with status s.
func WithStatus(s indexer.Status) Option {
	return func(o *options) {
		o.predicate = StatusFilter(s)
	}
}

// WithPredicate ranks only documents accepted by p. A nil p keeps the
// default.
func WithPredicate(p Predicate) Option {
	return func(o *options) {
		if p != nil {
			o.predicate = p
		}
	}
}

func WithPolicy(p indexer.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

func buildOptions(opts []Option) options {
	o := options{
		predicate: StatusFilter(indexer.StatusActive),
		policy:    indexer.Sequential,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
