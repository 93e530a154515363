package group

import (
	"testing"

	"github.com/protocol-laboratory/kafka-codec-go/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMember(memberId string, pairs ...string) *Member {
	return NewMember(memberId, "g1", "client-"+memberId, "10.0.0.1", 6000, testProtocols(pairs...))
}

func markJoined(members ...*Member) {
	for _, m := range members {
		m.SetJoinCallback(func(*codec.JoinGroupResp) {})
	}
}

func TestNewGroupStartsStableAndEmpty(t *testing.T) {
	g := New("g1", "consumer")
	assert.True(t, g.Is(Stable))
	assert.True(t, g.IsEmpty())
	assert.Equal(t, 0, g.Generation())
	assert.Equal(t, "", g.Leader())
	assert.Equal(t, "", g.Protocol())
}

func TestLeaderFollowsMembership(t *testing.T) {
	g := New("g1", "consumer")

	m1 := newTestMember("m1", "range", "")
	m2 := newTestMember("m2", "range", "")
	require.NoError(t, g.Add(m1))
	assert.Equal(t, "m1", g.Leader())

	require.NoError(t, g.Add(m2))
	assert.Equal(t, "m1", g.Leader(), "leader must not change while it stays in the group")
	assert.True(t, g.IsLeader("m1"))
	assert.False(t, g.IsLeader("m2"))

	g.Remove("m1")
	assert.Equal(t, "m2", g.Leader())

	g.Remove("m2")
	assert.True(t, g.IsEmpty())
	assert.Equal(t, "", g.Leader())
}

func TestLeaderReselectionPicksSmallestMemberId(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m9", "range", "")))
	require.NoError(t, g.Add(newTestMember("m3", "range", "")))
	require.NoError(t, g.Add(newTestMember("m5", "range", "")))
	assert.Equal(t, "m9", g.Leader())

	g.Remove("m9")
	assert.Equal(t, "m3", g.Leader())
}

func TestFindMember(t *testing.T) {
	g := New("g1", "consumer")
	m1 := newTestMember("m1", "range", "")
	require.NoError(t, g.Add(m1))

	found, err := g.FindMember("m1")
	require.NoError(t, err)
	assert.Equal(t, m1, found)

	_, err = g.FindMember("m2")
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.False(t, IsContractViolation(err))
}

func TestRemovingNonLeaderKeepsLeader(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m1", "range", "")))
	require.NoError(t, g.Add(newTestMember("m2", "range", "")))

	g.Remove("m2")
	assert.Equal(t, "m1", g.Leader())
	assert.Equal(t, 1, g.Size())
}

func TestSupportsProtocolsIntersection(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m1", "range", "", "roundrobin", "")))
	require.NoError(t, g.Add(newTestMember("m2", "roundrobin", "", "range", "")))

	candidates := g.candidateProtocols()
	assert.Len(t, candidates, 2)
	assert.Contains(t, candidates, "range")
	assert.Contains(t, candidates, "roundrobin")

	// a member sharing nothing with the group must be rejected
	assert.False(t, g.SupportsProtocols(testProtocols("sticky", "")))
	err := g.Add(newTestMember("m3", "sticky", ""))
	assert.ErrorIs(t, err, ErrIncompatibleMember)
	assert.True(t, IsContractViolation(err))
	assert.Equal(t, 2, g.Size())

	// partial overlap is enough
	assert.True(t, g.SupportsProtocols(testProtocols("sticky", "", "range", "")))
}

func TestDuplicateProtocolNamesCountOnce(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m1", "range", "v1", "range", "v2")))

	candidates := g.candidateProtocols()
	assert.Len(t, candidates, 1)
	assert.Contains(t, candidates, "range")

	// a second member sharing the repeated name still intersects
	assert.True(t, g.SupportsProtocols(testProtocols("range", "")))
	require.NoError(t, g.Add(newTestMember("m2", "range", "")))

	protocol, err := g.SelectProtocol()
	assert.NoError(t, err)
	assert.Equal(t, "range", protocol)
}

func TestSupportsProtocolsOnEmptyGroup(t *testing.T) {
	g := New("g1", "consumer")
	assert.True(t, g.SupportsProtocols(testProtocols("anything", "")))
}

func TestSelectProtocolCountsVotes(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m1", "range", "", "roundrobin", "")))
	require.NoError(t, g.Add(newTestMember("m2", "roundrobin", "", "range", "")))
	require.NoError(t, g.Add(newTestMember("m3", "roundrobin", "", "range", "")))

	protocol, err := g.SelectProtocol()
	assert.NoError(t, err)
	assert.Equal(t, "roundrobin", protocol)
}

func TestSelectProtocolTieBreaksLexicographically(t *testing.T) {
	g := New("g1", "consumer")
	require.NoError(t, g.Add(newTestMember("m1", "range", "", "roundrobin", "")))
	require.NoError(t, g.Add(newTestMember("m2", "roundrobin", "", "range", "")))

	// 1-1 tie, "range" < "roundrobin"
	for i := 0; i < 10; i++ {
		protocol, err := g.SelectProtocol()
		assert.NoError(t, err)
		assert.Equal(t, "range", protocol)
	}
}

func TestSelectProtocolOnEmptyGroup(t *testing.T) {
	g := New("g1", "consumer")
	_, err := g.SelectProtocol()
	assert.ErrorIs(t, err, ErrEmptyGroup)
	assert.True(t, IsContractViolation(err))
}

func TestNotYetRejoined(t *testing.T) {
	g := New("g1", "consumer")
	m1 := newTestMember("m1", "range", "")
	m2 := newTestMember("m2", "range", "")
	require.NoError(t, g.Add(m1))
	require.NoError(t, g.Add(m2))

	pending := g.NotYetRejoined()
	require.Len(t, pending, 2)
	assert.False(t, g.AllMembersRejoined())

	markJoined(m1)
	pending = g.NotYetRejoined()
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].MemberId())

	markJoined(m2)
	assert.Empty(t, g.NotYetRejoined())
	assert.True(t, g.AllMembersRejoined())
}

func TestRebalanceTimeout(t *testing.T) {
	g := New("g1", "consumer")
	assert.Equal(t, 0, g.RebalanceTimeoutMs())

	require.NoError(t, g.Add(NewMember("m1", "g1", "c1", "h", 6000, testProtocols("range", ""))))
	require.NoError(t, g.Add(NewMember("m2", "g1", "c2", "h", 10000, testProtocols("range", ""))))
	require.NoError(t, g.Add(NewMember("m3", "g1", "c3", "h", 3000, testProtocols("range", ""))))
	assert.Equal(t, 10000, g.RebalanceTimeoutMs())
}

func TestInitNextGenerationRequiresAllRejoined(t *testing.T) {
	g := New("g1", "consumer")
	m1 := newTestMember("m1", "range", "")
	require.NoError(t, g.Add(m1))
	require.NoError(t, g.TransitionTo(PreparingRebalance))

	err := g.InitNextGeneration()
	assert.ErrorIs(t, err, ErrMembersNotRejoined)
	assert.True(t, IsContractViolation(err))
	assert.Equal(t, 0, g.Generation(), "failed advance must not bump the generation")
	assert.True(t, g.Is(PreparingRebalance))

	markJoined(m1)
	assert.NoError(t, g.InitNextGeneration())
	assert.Equal(t, 1, g.Generation())
	assert.Equal(t, "range", g.Protocol())
	assert.True(t, g.Is(AwaitingSync))
}

func TestGroupSummary(t *testing.T) {
	g := New("g1", "consumer")
	m1 := newTestMember("m1", "range", "meta1")
	require.NoError(t, g.Add(m1))
	require.NoError(t, g.TransitionTo(PreparingRebalance))
	markJoined(m1)
	require.NoError(t, g.InitNextGeneration())

	// mid-rebalance the summary must omit metadata and assignments
	summary, err := g.Summary()
	require.NoError(t, err)
	assert.Equal(t, "AwaitingSync", summary.State)
	require.Len(t, summary.Members, 1)
	assert.Nil(t, summary.Members[0].Metadata)

	m1.SetAssignment([]byte("a1"))
	require.NoError(t, g.TransitionTo(Stable))
	summary, err = g.Summary()
	require.NoError(t, err)
	assert.Equal(t, "range", summary.Protocol)
	require.Len(t, summary.Members, 1)
	assert.Equal(t, []byte("meta1"), summary.Members[0].Metadata)
	assert.Equal(t, []byte("a1"), summary.Members[0].Assignment)
}

// Scenario from the coordinator's point of view: two members join, the
// generation advances, the group stabilizes, members drop out, the group dies.
func TestGroupLifecycleScenario(t *testing.T) {
	g := New("g1", "consumer")
	assert.True(t, g.Is(Stable))
	assert.True(t, g.IsEmpty())

	m1 := newTestMember("m1", "range", "b1")
	m2 := newTestMember("m2", "range", "b2")
	require.NoError(t, g.Add(m1))
	assert.Equal(t, "m1", g.Leader())
	require.NoError(t, g.Add(m2))
	assert.Equal(t, "m1", g.Leader())

	require.NoError(t, g.TransitionTo(PreparingRebalance))
	markJoined(m1, m2)
	require.NoError(t, g.InitNextGeneration())
	assert.Equal(t, 1, g.Generation())
	assert.Equal(t, "range", g.Protocol())
	assert.True(t, g.Is(AwaitingSync))

	require.NoError(t, g.TransitionTo(Stable))

	g.Remove("m1")
	assert.Equal(t, "m2", g.Leader())

	require.NoError(t, g.TransitionTo(Dead))
	err := g.TransitionTo(Stable)
	assert.Error(t, err)

	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, Dead, illegal.From)
	assert.Equal(t, Stable, illegal.To)
}
