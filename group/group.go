package group

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/protocol-laboratory/kafka-codec-go/codec"
)

// Group is the aggregate the coordinator keeps per consumer group: current
// state, membership, the negotiated assignment protocol and the generation
// counter used to fence stale requests.
//
// A Group is not safe for concurrent mutation. The coordinating service owns
// exactly one exclusive-access domain per group id and serializes every
// operation through it; see the coordinator package.
type Group struct {
	groupId      string
	protocolType string

	state        State
	generationId int
	leaderId     string
	protocol     string

	members map[string]*Member
}

// GroupSummary is a read-only view of a group for external reporting.
type GroupSummary struct {
	GroupId      string
	ProtocolType string
	State        string
	Protocol     string
	Members      []MemberSummary
}

// New creates an empty group. A fresh group starts Stable with no members;
// the first join moves it into PreparingRebalance.
func New(groupId, protocolType string) *Group {
	return &Group{
		groupId:      groupId,
		protocolType: protocolType,
		state:        Stable,
		generationId: 0,
		members:      make(map[string]*Member),
	}
}

func (g *Group) GroupId() string {
	return g.groupId
}

func (g *Group) ProtocolType() string {
	return g.protocolType
}

// Is reports whether the group is currently in the given state.
func (g *Group) Is(state State) bool {
	return g.state == state
}

// CanRebalance reports whether a rebalance may start from the current state.
func (g *Group) CanRebalance() bool {
	return g.state.validTransitionTo(PreparingRebalance)
}

// TransitionTo moves the group to the target state if the legal-transition
// table permits it. Any other transition is rejected with an
// IllegalTransitionError and leaves the group untouched.
func (g *Group) TransitionTo(target State) error {
	if !g.state.validTransitionTo(target) {
		return &IllegalTransitionError{GroupId: g.groupId, From: g.state, To: target}
	}
	g.state = target
	return nil
}

func (g *Group) Generation() int {
	return g.generationId
}

// Leader returns the current leader member id, empty while the group has no
// members.
func (g *Group) Leader() string {
	return g.leaderId
}

func (g *Group) IsLeader(memberId string) bool {
	return g.leaderId != "" && g.leaderId == memberId
}

// Protocol is the assignment protocol selected at the last generation
// advance, empty before the first one.
func (g *Group) Protocol() string {
	return g.protocol
}

func (g *Group) IsEmpty() bool {
	return len(g.members) == 0
}

func (g *Group) Size() int {
	return len(g.members)
}

func (g *Group) Member(memberId string) (*Member, bool) {
	member, ok := g.members[memberId]
	return member, ok
}

// FindMember is the erroring variant of Member; callers translate
// ErrMemberNotFound into a protocol-level error code.
func (g *Group) FindMember(memberId string) (*Member, error) {
	member, ok := g.members[memberId]
	if !ok {
		return nil, errors.Wrapf(ErrMemberNotFound, "group %s, member %s", g.groupId, memberId)
	}
	return member, nil
}

func (g *Group) HasMember(memberId string) bool {
	_, ok := g.members[memberId]
	return ok
}

// Members returns the current membership in member id order.
func (g *Group) Members() []*Member {
	members := make([]*Member, 0, len(g.members))
	for _, id := range g.sortedMemberIds() {
		members = append(members, g.members[id])
	}
	return members
}

// Add inserts or replaces a member. The member must share at least one
// protocol with the rest of the group; the caller checks SupportsProtocols
// before admitting it, so a violation here is a contract breach, not a
// recoverable request error. The first member added becomes leader.
func (g *Group) Add(member *Member) error {
	if !g.SupportsProtocols(member.SupportedProtocols()) {
		return errors.Wrapf(ErrIncompatibleMember, "group %s, member %s", g.groupId, member.MemberId())
	}
	g.members[member.MemberId()] = member
	if g.leaderId == "" {
		g.leaderId = member.MemberId()
	}
	return nil
}

// Remove deletes the member. If it led the group, leadership moves to the
// remaining member with the smallest member id, or clears when the group
// becomes empty.
func (g *Group) Remove(memberId string) {
	delete(g.members, memberId)
	if g.leaderId != memberId {
		return
	}
	g.leaderId = ""
	if ids := g.sortedMemberIds(); len(ids) > 0 {
		g.leaderId = ids[0]
	}
}

// NotYetRejoined returns the members that have no parked join callback, i.e.
// have not resubmitted a join in the current rebalance round.
func (g *Group) NotYetRejoined() []*Member {
	var pending []*Member
	for _, id := range g.sortedMemberIds() {
		if member := g.members[id]; !member.AwaitingJoin() {
			pending = append(pending, member)
		}
	}
	return pending
}

// AllMembersRejoined reports whether every member holds a parked join
// callback, the precondition for releasing the join barrier.
func (g *Group) AllMembersRejoined() bool {
	for _, member := range g.members {
		if !member.AwaitingJoin() {
			return false
		}
	}
	return true
}

// RebalanceTimeoutMs is the maximum session timeout across all members, 0 for
// an empty group. The scheduler uses it as the deadline for forcing the join
// barrier even if some members never rejoin.
func (g *Group) RebalanceTimeoutMs() int {
	timeout := 0
	for _, member := range g.members {
		if member.SessionTimeoutMs() > timeout {
			timeout = member.SessionTimeoutMs()
		}
	}
	return timeout
}

// candidateProtocols is the intersection of every member's supported protocol
// names. Meaningless on an empty group; callers guard with IsEmpty.
func (g *Group) candidateProtocols() map[string]struct{} {
	counts := make(map[string]int)
	for _, member := range g.members {
		// count each name once per member, a declaration may repeat names
		seen := make(map[string]struct{})
		for _, p := range member.SupportedProtocols() {
			if _, ok := seen[p.ProtocolName]; ok {
				continue
			}
			seen[p.ProtocolName] = struct{}{}
			counts[p.ProtocolName]++
		}
	}
	candidates := make(map[string]struct{})
	for name, count := range counts {
		if count == len(g.members) {
			candidates[name] = struct{}{}
		}
	}
	return candidates
}

// SupportsProtocols reports whether a member declaring the given protocols
// can coexist with the current membership: always true for an empty group,
// otherwise the declaration must intersect the group's candidate set.
func (g *Group) SupportsProtocols(protocols []*codec.GroupProtocol) bool {
	if g.IsEmpty() {
		return true
	}
	candidates := g.candidateProtocols()
	for _, p := range protocols {
		if _, ok := candidates[p.ProtocolName]; ok {
			return true
		}
	}
	return false
}

// SelectProtocol tallies one vote per member, each member voting for the
// first candidate in its own preference order. Ties break to the
// lexicographically smallest protocol name, so repeated calls over the same
// membership always agree.
func (g *Group) SelectProtocol() (string, error) {
	if g.IsEmpty() {
		return "", errors.Wrapf(ErrEmptyGroup, "group %s", g.groupId)
	}
	candidates := g.candidateProtocols()
	votes := make(map[string]int)
	for _, member := range g.members {
		choice, err := member.Vote(candidates)
		if err != nil {
			return "", err
		}
		votes[choice]++
	}
	selected := ""
	maxVotes := 0
	for name, count := range votes {
		if count > maxVotes || (count == maxVotes && name < selected) {
			selected = name
			maxVotes = count
		}
	}
	return selected, nil
}

// InitNextGeneration releases the join barrier: generation moves up by one,
// the assignment protocol is re-voted and the group enters AwaitingSync.
// Every member must have rejoined first; the scheduler invoking this too
// early is a contract breach. On any error the group is left unchanged.
func (g *Group) InitNextGeneration() error {
	if !g.AllMembersRejoined() {
		return errors.Wrapf(ErrMembersNotRejoined, "group %s, %d pending", g.groupId, len(g.NotYetRejoined()))
	}
	protocol, err := g.SelectProtocol()
	if err != nil {
		return err
	}
	if err := g.TransitionTo(AwaitingSync); err != nil {
		return err
	}
	g.generationId++
	g.protocol = protocol
	return nil
}

// Summary reports the group for external consumers, with per-member metadata
// and assignments only while the group is Stable.
func (g *Group) Summary() (GroupSummary, error) {
	summary := GroupSummary{
		GroupId:      g.groupId,
		ProtocolType: g.protocolType,
		State:        g.state.String(),
		Protocol:     g.protocol,
	}
	for _, member := range g.Members() {
		if g.Is(Stable) {
			ms, err := member.Summary(g.protocol)
			if err != nil {
				return GroupSummary{}, err
			}
			summary.Members = append(summary.Members, ms)
		} else {
			summary.Members = append(summary.Members, member.SummaryNoMetadata())
		}
	}
	return summary, nil
}

func (g *Group) sortedMemberIds() []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
