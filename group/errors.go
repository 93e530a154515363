package group

import (
	"github.com/pkg/errors"
)

// Contract violations. These indicate the coordinating service broke a
// precondition it was responsible for upholding; they are never retried here.
var (
	ErrEmptyGroup         = errors.New("cannot select protocol for empty group")
	ErrMembersNotRejoined = errors.New("cannot advance generation, some members have not rejoined")
	ErrIncompatibleMember = errors.New("member protocols do not intersect the group candidate protocols")
)

// Lookup and negotiation errors. The coordinating service translates these
// into protocol-level error codes.
var (
	ErrMemberNotFound       = errors.New("member not found in group")
	ErrProtocolNotSupported = errors.New("member does not support protocol")
	ErrNoCommonProtocol     = errors.New("member supports none of the candidate protocols")
)

// IsContractViolation reports whether err belongs to the contract-violation
// category: an illegal state transition or a precondition broken by the
// caller, as opposed to a lookup error that maps to a client-facing code.
func IsContractViolation(err error) bool {
	var illegal *IllegalTransitionError
	if errors.As(err, &illegal) {
		return true
	}
	return errors.Is(err, ErrEmptyGroup) ||
		errors.Is(err, ErrMembersNotRejoined) ||
		errors.Is(err, ErrIncompatibleMember)
}
