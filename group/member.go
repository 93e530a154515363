package group

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"github.com/protocol-laboratory/kafka-codec-go/codec"
)

// JoinCallback resolves a join request that was parked against a member while
// the group collected joins from the rest of the membership.
type JoinCallback func(*codec.JoinGroupResp)

// SyncCallback resolves a sync request that was parked against a member while
// the group waited for the leader's assignment.
type SyncCallback func(*codec.SyncGroupResp)

// Member is the per-member bookkeeping a group keeps between rebalances.
// Identity fields are immutable after creation. A Member is owned by exactly
// one Group and shares its exclusive-access discipline; it is not safe for
// concurrent use on its own.
type Member struct {
	memberId         string
	groupId          string
	clientId         string
	clientHost       string
	sessionTimeoutMs int

	// supportedProtocols is ordered most preferred first; the order is the
	// member's ballot during protocol selection.
	supportedProtocols []*codec.GroupProtocol

	assignment []byte

	awaitingJoinCallback JoinCallback
	awaitingSyncCallback SyncCallback

	// latestHeartbeat stays the zero time until the first heartbeat arrives.
	latestHeartbeat time.Time
	isLeaving       bool
}

// MemberSummary is a read-only view of a member for external reporting.
type MemberSummary struct {
	MemberId   string
	ClientId   string
	ClientHost string
	Metadata   []byte
	Assignment []byte
}

func NewMember(memberId, groupId, clientId, clientHost string, sessionTimeoutMs int,
	protocols []*codec.GroupProtocol) *Member {
	return &Member{
		memberId:           memberId,
		groupId:            groupId,
		clientId:           clientId,
		clientHost:         clientHost,
		sessionTimeoutMs:   sessionTimeoutMs,
		supportedProtocols: protocols,
	}
}

func (m *Member) MemberId() string {
	return m.memberId
}

func (m *Member) GroupId() string {
	return m.groupId
}

func (m *Member) ClientId() string {
	return m.clientId
}

func (m *Member) ClientHost() string {
	return m.clientHost
}

func (m *Member) SessionTimeoutMs() int {
	return m.sessionTimeoutMs
}

func (m *Member) SupportedProtocols() []*codec.GroupProtocol {
	return m.supportedProtocols
}

// UpdateProtocols replaces the member's declared protocol list. Called on
// rejoin when the member shows up with a changed declaration.
func (m *Member) UpdateProtocols(protocols []*codec.GroupProtocol) {
	m.supportedProtocols = protocols
}

// Metadata returns the opaque metadata the member declared for the given
// protocol name, or ErrProtocolNotSupported if it never declared it.
func (m *Member) Metadata(protocol string) ([]byte, error) {
	for _, p := range m.supportedProtocols {
		if p.ProtocolName == protocol {
			return p.ProtocolMetadata, nil
		}
	}
	return nil, errors.Wrapf(ErrProtocolNotSupported, "member %s, protocol %s", m.memberId, protocol)
}

// Matches reports whether the given protocol list is identical to the
// member's current declaration: same length, same order, byte-equal metadata.
// A rejoin that does not match forces a fresh rebalance.
func (m *Member) Matches(protocols []*codec.GroupProtocol) bool {
	if len(protocols) != len(m.supportedProtocols) {
		return false
	}
	for i, p := range protocols {
		cur := m.supportedProtocols[i]
		if p.ProtocolName != cur.ProtocolName || !bytes.Equal(p.ProtocolMetadata, cur.ProtocolMetadata) {
			return false
		}
	}
	return true
}

// Vote casts the member's vote: the first protocol in its own preference
// order that appears in candidates. With compatibility enforced at add time
// the error branch is unreachable in a well-behaved group.
func (m *Member) Vote(candidates map[string]struct{}) (string, error) {
	for _, p := range m.supportedProtocols {
		if _, ok := candidates[p.ProtocolName]; ok {
			return p.ProtocolName, nil
		}
	}
	return "", errors.Wrapf(ErrNoCommonProtocol, "member %s", m.memberId)
}

// Summary includes the member's metadata for the given protocol and its
// current assignment. Use SummaryNoMetadata while the group is not Stable,
// since both may be in flux mid-rebalance.
func (m *Member) Summary(protocol string) (MemberSummary, error) {
	metadata, err := m.Metadata(protocol)
	if err != nil {
		return MemberSummary{}, err
	}
	return MemberSummary{
		MemberId:   m.memberId,
		ClientId:   m.clientId,
		ClientHost: m.clientHost,
		Metadata:   metadata,
		Assignment: m.assignment,
	}, nil
}

func (m *Member) SummaryNoMetadata() MemberSummary {
	return MemberSummary{
		MemberId:   m.memberId,
		ClientId:   m.clientId,
		ClientHost: m.clientHost,
	}
}

func (m *Member) Assignment() []byte {
	return m.assignment
}

func (m *Member) SetAssignment(assignment []byte) {
	m.assignment = assignment
}

// SetJoinCallback parks a join continuation on the member. The marker is
// present exactly while a join request is waiting on the group barrier.
func (m *Member) SetJoinCallback(cb JoinCallback) {
	m.awaitingJoinCallback = cb
}

func (m *Member) AwaitingJoin() bool {
	return m.awaitingJoinCallback != nil
}

// TakeJoinCallback returns the parked join continuation and clears it in the
// same step, so a callback can never fire twice.
func (m *Member) TakeJoinCallback() (JoinCallback, bool) {
	cb := m.awaitingJoinCallback
	m.awaitingJoinCallback = nil
	return cb, cb != nil
}

func (m *Member) SetSyncCallback(cb SyncCallback) {
	m.awaitingSyncCallback = cb
}

func (m *Member) AwaitingSync() bool {
	return m.awaitingSyncCallback != nil
}

func (m *Member) TakeSyncCallback() (SyncCallback, bool) {
	cb := m.awaitingSyncCallback
	m.awaitingSyncCallback = nil
	return cb, cb != nil
}

func (m *Member) LatestHeartbeat() time.Time {
	return m.latestHeartbeat
}

func (m *Member) KeepAlive(now time.Time) {
	m.latestHeartbeat = now
}

// MarkLeaving flags a member whose leave has been observed but not yet
// processed. The in-memory coordinator removes leaving members in the same
// critical section, so there the flag never outlives the leave call; it is
// meaningful to callers that process leaves in stages.
func (m *Member) MarkLeaving() {
	m.isLeaving = true
}

func (m *Member) IsLeaving() bool {
	return m.isLeaving
}
