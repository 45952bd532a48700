// Package config holds the functional-options subscription configuration
// surface, generalized from the teacher's own cfg/Opt pattern (consumer.go's
// cfg.logger, cfg.maxVersions and friends, each set through a ConsumerOpt
// closure) into the dispatcher's own option set.
package config

import "github.com/cognitree/pulsar/pkg/logging"

// KeySharedMode selects which StickyKeySelector variant a subscription
// uses.
type KeySharedMode uint8

const (
	// AutoSplit divides the hash space uniformly across consumers.
	AutoSplit KeySharedMode = iota
	// Sticky uses consistent-hashing or exclusive ranges, depending on
	// UseConsistentHashing and any explicitly claimed ranges.
	Sticky
)

func (m KeySharedMode) String() string {
	switch m {
	case AutoSplit:
		return "auto_split"
	case Sticky:
		return "sticky"
	default:
		return "unknown"
	}
}

// JoinSnapshot is the information available to a JoinAdmissionPredicate
// when a consumer joins an already-active subscription.
type JoinSnapshot struct {
	// ConsumerCount is the number of consumers registered after this join.
	ConsumerCount int
	// EntriesSinceFirstNotAckedMessage approximates how far the cursor's
	// read position has moved past its oldest unacknowledged entry.
	EntriesSinceFirstNotAckedMessage int
}

// JoinAdmissionPredicate decides whether a newly joined consumer must be
// inserted into the recently-joined fence table. The default reproduces the
// heuristic named in spec.md §9 verbatim: more than one consumer is present,
// and the cursor has moved more than one entry past its oldest unacked
// message.
type JoinAdmissionPredicate func(JoinSnapshot) bool

// DefaultJoinAdmissionPredicate is ConsumerCount > 1 &&
// entriesSinceFirstNotAckedMessage > 1, the heuristic named in spec.md §9,
// made pluggable per the Open Question there rather than hardcoded.
func DefaultJoinAdmissionPredicate(s JoinSnapshot) bool {
	return s.ConsumerCount > 1 && s.EntriesSinceFirstNotAckedMessage > 1
}

// Options is the resolved subscription configuration.
type Options struct {
	KeySharedMode                  KeySharedMode
	AllowOutOfOrderDelivery        bool
	UseConsistentHashing           bool
	ConsistentHashingReplicaPoints int
	JoinAdmissionPredicate         JoinAdmissionPredicate
	Logger                         logging.Logger
	ReadBatchSize                  int
}

// Option mutates an Options value under construction.
type Option func(*Options)

// New resolves opts against the defaults: Sticky mode, in-order delivery,
// consistent hashing with 100 replica points, the spec's default join
// predicate, a no-op logger, and a batch size of 100.
func New(opts ...Option) Options {
	o := Options{
		KeySharedMode:                  Sticky,
		AllowOutOfOrderDelivery:        false,
		UseConsistentHashing:           true,
		ConsistentHashingReplicaPoints: 100,
		JoinAdmissionPredicate:         DefaultJoinAdmissionPredicate,
		Logger:                         logging.Nop{},
		ReadBatchSize:                  100,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithStickyMode() Option {
	return func(o *Options) { o.KeySharedMode = Sticky }
}

func WithAutoSplitMode() Option {
	return func(o *Options) { o.KeySharedMode = AutoSplit }
}

func WithAllowOutOfOrderDelivery(allow bool) Option {
	return func(o *Options) { o.AllowOutOfOrderDelivery = allow }
}

func WithConsistentHashing(use bool, replicaPoints int) Option {
	return func(o *Options) {
		o.UseConsistentHashing = use
		if replicaPoints > 0 {
			o.ConsistentHashingReplicaPoints = replicaPoints
		}
	}
}

func WithJoinAdmissionPredicate(p JoinAdmissionPredicate) Option {
	return func(o *Options) {
		if p != nil {
			o.JoinAdmissionPredicate = p
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func WithReadBatchSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ReadBatchSize = n
		}
	}
}
