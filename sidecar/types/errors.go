// Package types defines the shared value types and error taxonomy used
// throughout the privacy sidecar.
package types

import "github.com/pkg/errors"

// Kind classifies a sidecar error into one of the broad categories an
// operator cares about when deciding whether to page, retry, or ignore.
type Kind int

const (
	// KindInternal covers queue closures, task panics, and other bugs.
	KindInternal Kind = iota
	// KindNetwork covers transport or peer-reachability failures.
	KindNetwork
	// KindConfig covers a violated configuration invariant.
	KindConfig
	// KindProviderAPI covers a remote provider rejecting or malforming a call.
	KindProviderAPI
	// KindRLNProof covers proof generation/verification failure or a rate-limit trip.
	KindRLNProof
	// KindSubnetManagement covers a subscribe/unsubscribe failure.
	KindSubnetManagement
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	case KindProviderAPI:
		return "provider_api"
	case KindRLNProof:
		return "rln_proof"
	case KindSubnetManagement:
		return "subnet_management"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// category without string-matching messages.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Newf builds a Kind-tagged error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

// KindOf extracts the Kind from err, defaulting to KindInternal if err was
// not produced by this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

var (
	// ErrSubnetOutOfRange is returned by NewSubnetID for ids above MaxSubnetID.
	ErrSubnetOutOfRange = errors.New("subnet id out of range")
	// ErrTooManyExtraSubnets is returned by config validation.
	ErrTooManyExtraSubnets = errors.New("extra_subnets_per_epoch exceeds the maximum of 32")
	// ErrTooFewFriends is returned by config validation.
	ErrTooFewFriends = errors.New("at least 3 friend nodes are required for k-anonymity")
	// ErrRateLimitExceeded is returned by the rate limiter when an epoch's quota is spent.
	ErrRateLimitExceeded = errors.New("rate limit exceeded for epoch")
	// ErrNullifierReused is returned when a nullifier is replayed within its epoch window.
	ErrNullifierReused = errors.New("nullifier already used in this epoch")
	// ErrNoFriendsConfigured is returned when a relay has no friends to fan out to.
	ErrNoFriendsConfigured = errors.New("no friends configured")
	// ErrAllFriendsFailed is returned when every friend rejected a light-push.
	ErrAllFriendsFailed = errors.New("failed to relay to any friend")
)
