package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/kafka-codec-go/codec"

	"github.com/protocol-laboratory/kafka-group-go/constant"
	"github.com/protocol-laboratory/kafka-group-go/group"
	"github.com/protocol-laboratory/kafka-group-go/log"
	"github.com/protocol-laboratory/kafka-group-go/metrics"
	"github.com/protocol-laboratory/kafka-group-go/utils"
)

// memoryGroup pairs a group aggregate with its exclusive-access lock. Every
// operation on the aggregate happens under mu; that is the single-writer
// discipline the group package requires.
type memoryGroup struct {
	mu sync.Mutex
	g  *group.Group

	// deadlineTimer forces the current barrier (join or sync) when members
	// go silent. Rescheduled on every phase change, fenced by generation.
	deadlineTimer *time.Timer
}

// GroupCoordinatorMemory keeps every group in process memory. Operations on
// different groups run fully in parallel; operations on the same group are
// serialized by the group's own lock.
type GroupCoordinatorMemory struct {
	config *Config
	logger log.Logger

	mutex        sync.RWMutex
	groupManager map[string]*memoryGroup

	offsets *offsetStore

	// unknownMemberLimiter throttles warn logs for heartbeats from members
	// the group no longer knows, which arrive in bursts after every eviction.
	unknownMemberLimiter *utils.KeyBasedRateLimiter

	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewGroupCoordinatorMemory(config *Config) *GroupCoordinatorMemory {
	config.normalize()
	c := &GroupCoordinatorMemory{
		config:               config,
		logger:               config.Logger,
		groupManager:         make(map[string]*memoryGroup),
		offsets:              newOffsetStore(),
		unknownMemberLimiter: utils.NewKeyBasedRateLimiter(10, 1),
		closeCh:              make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *GroupCoordinatorMemory) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	c.mutex.RLock()
	groups := make([]*memoryGroup, 0, len(c.groupManager))
	for _, mg := range c.groupManager {
		groups = append(groups, mg)
	}
	c.mutex.RUnlock()
	for _, mg := range groups {
		mg.mu.Lock()
		if mg.deadlineTimer != nil {
			mg.deadlineTimer.Stop()
			mg.deadlineTimer = nil
		}
		mg.mu.Unlock()
	}
}

func (c *GroupCoordinatorMemory) key(username, groupId string) string {
	return username + groupId
}

func (c *GroupCoordinatorMemory) getGroup(key string) (*memoryGroup, bool) {
	c.mutex.RLock()
	mg, ok := c.groupManager[key]
	c.mutex.RUnlock()
	return mg, ok
}

func (c *GroupCoordinatorMemory) getOrCreateGroup(username, groupId, protocolType string) *memoryGroup {
	key := c.key(username, groupId)
	c.mutex.Lock()
	mg, ok := c.groupManager[key]
	if !ok {
		mg = &memoryGroup{g: group.New(groupId, protocolType)}
		c.groupManager[key] = mg
		metrics.GroupCount.Inc()
		c.logger.GroupID(groupId).Infof("created group with protocol type %s", protocolType)
	}
	c.mutex.Unlock()
	return mg
}

func (c *GroupCoordinatorMemory) HandleJoinGroup(username, groupId, memberId, clientId, clientHost, protocolType string,
	sessionTimeoutMs int, protocols []*codec.GroupProtocol) (*codec.JoinGroupResp, error) {
	start := time.Now()
	resp, err := c.handleJoinGroup(username, groupId, memberId, clientId, clientHost, protocolType, sessionTimeoutMs, protocols)
	if err != nil || resp.ErrorCode != codec.NONE {
		metrics.JoinGroupFailCount.Inc()
	} else {
		metrics.JoinGroupSuccessCount.Inc()
	}
	metrics.JoinGroupLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp, err
}

func (c *GroupCoordinatorMemory) handleJoinGroup(username, groupId, memberId, clientId, clientHost, protocolType string,
	sessionTimeoutMs int, protocols []*codec.GroupProtocol) (*codec.JoinGroupResp, error) {
	if groupId == "" {
		c.logger.ClientID(clientId).Errorf("join rejected, groupId is empty")
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.INVALID_GROUP_ID}, nil
	}
	if sessionTimeoutMs < c.config.GroupMinSessionTimeoutMs || sessionTimeoutMs > c.config.GroupMaxSessionTimeoutMs {
		c.logger.GroupID(groupId).Errorf("join rejected, invalid sessionTimeoutMs: %d, allowed range [%d, %d]",
			sessionTimeoutMs, c.config.GroupMinSessionTimeoutMs, c.config.GroupMaxSessionTimeoutMs)
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.INVALID_SESSION_TIMEOUT}, nil
	}

	key := c.key(username, groupId)
	mg := c.getOrCreateGroup(username, groupId, protocolType)
	mg.mu.Lock()
	g := mg.g

	if g.Is(group.Dead) {
		mg.mu.Unlock()
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.UNKNOWN_MEMBER_ID}, nil
	}
	if g.IsEmpty() {
		if protocolType == "" || len(protocols) == 0 {
			mg.mu.Unlock()
			return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.INCONSISTENT_GROUP_PROTOCOL}, nil
		}
	} else if g.ProtocolType() != protocolType || !g.SupportsProtocols(protocols) {
		c.logger.GroupID(groupId).ClientID(clientId).Errorf("join rejected, protocols do not match the group")
		mg.mu.Unlock()
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.INCONSISTENT_GROUP_PROTOCOL}, nil
	}

	member, known := g.Member(memberId)
	isNew := memberId == constant.EmptyMemberId || !known
	if isNew {
		if c.config.MaxConsumersPerGroup > 0 && g.Size() >= c.config.MaxConsumersPerGroup {
			c.logger.GroupID(groupId).ClientID(clientId).Errorf("join rejected, group is full: %d members, limit %d",
				g.Size(), c.config.MaxConsumersPerGroup)
			mg.mu.Unlock()
			return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.UNKNOWN_SERVER_ERROR}, nil
		}
		memberId = clientId + "-" + uuid.New().String()
		member = group.NewMember(memberId, groupId, clientId, clientHost, sessionTimeoutMs, protocols)
		if err := g.Add(member); err != nil {
			c.logger.GroupID(groupId).Errorf("add member %s failed: %v", memberId, err)
			mg.mu.Unlock()
			return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.UNKNOWN_SERVER_ERROR}, nil
		}
		c.logger.GroupID(groupId).ClientID(clientId).Infof("member %s joined from %s", memberId, clientHost)
	} else {
		protocolsChanged := !member.Matches(protocols)
		if protocolsChanged {
			member.UpdateProtocols(protocols)
		}
		if (g.Is(group.Stable) || g.Is(group.AwaitingSync)) && !protocolsChanged && !g.IsLeader(memberId) {
			// follower rejoining with an unchanged subscription, just hand
			// back the current generation
			member.KeepAlive(time.Now())
			resp := c.currentJoinRespLocked(g, member)
			mg.mu.Unlock()
			return resp, nil
		}
	}

	if g.CanRebalance() {
		c.prepareRebalanceLocked(key, mg, "member "+memberId+" joined")
	}
	if !g.Is(group.PreparingRebalance) {
		// cannot happen while the transition table holds, answer safely
		mg.mu.Unlock()
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.REBALANCE_IN_PROGRESS}, nil
	}

	// a duplicate join from the same member supersedes the parked one
	if cb, ok := member.TakeJoinCallback(); ok {
		cb(&codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.UNKNOWN_MEMBER_ID})
	}
	ch := make(chan *codec.JoinGroupResp, 1)
	member.SetJoinCallback(func(resp *codec.JoinGroupResp) {
		ch <- resp
	})
	if g.AllMembersRejoined() {
		c.completeJoinLocked(key, mg)
	}
	waitMs := g.RebalanceTimeoutMs() + c.config.InitialDelayedJoinMs + 2*c.config.RebalanceTickMs
	mg.mu.Unlock()

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(time.Duration(waitMs) * time.Millisecond):
		c.logger.GroupID(groupId).Errorf("member %s join wait timed out after %dms", memberId, waitMs)
		return &codec.JoinGroupResp{MemberId: memberId, ErrorCode: codec.REBALANCE_IN_PROGRESS}, nil
	}
}

func (c *GroupCoordinatorMemory) HandleSyncGroup(username, groupId, memberId string, generationId int,
	groupAssignments []*codec.GroupAssignment) (*codec.SyncGroupResp, error) {
	start := time.Now()
	resp, err := c.handleSyncGroup(username, groupId, memberId, generationId, groupAssignments)
	if err != nil || resp.ErrorCode != codec.NONE {
		metrics.SyncGroupFailCount.Inc()
	} else {
		metrics.SyncGroupSuccessCount.Inc()
	}
	metrics.SyncGroupLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp, err
}

func (c *GroupCoordinatorMemory) handleSyncGroup(username, groupId, memberId string, generationId int,
	groupAssignments []*codec.GroupAssignment) (*codec.SyncGroupResp, error) {
	if groupId == "" {
		return &codec.SyncGroupResp{ErrorCode: codec.INVALID_GROUP_ID}, nil
	}
	if memberId == "" {
		return &codec.SyncGroupResp{ErrorCode: codec.MEMBER_ID_REQUIRED}, nil
	}
	key := c.key(username, groupId)
	mg, ok := c.getGroup(key)
	if !ok {
		c.logger.GroupID(groupId).Errorf("sync rejected, unknown group")
		return &codec.SyncGroupResp{ErrorCode: codec.INVALID_GROUP_ID}, nil
	}
	mg.mu.Lock()
	g := mg.g

	member, err := g.FindMember(memberId)
	if err != nil || g.Is(group.Dead) {
		mg.mu.Unlock()
		return &codec.SyncGroupResp{ErrorCode: codec.UNKNOWN_MEMBER_ID}, nil
	}
	if generationId != g.Generation() {
		c.logger.GroupID(groupId).Warnf("fenced sync from member %s: generation %d, current %d",
			memberId, generationId, g.Generation())
		mg.mu.Unlock()
		return &codec.SyncGroupResp{ErrorCode: codec.ILLEGAL_GENERATION}, nil
	}

	if g.Is(group.PreparingRebalance) {
		mg.mu.Unlock()
		return &codec.SyncGroupResp{ErrorCode: codec.REBALANCE_IN_PROGRESS}, nil
	}
	if g.Is(group.Stable) {
		member.KeepAlive(time.Now())
		resp := &codec.SyncGroupResp{ErrorCode: codec.NONE, MemberAssignment: member.Assignment()}
		mg.mu.Unlock()
		return resp, nil
	}

	// AwaitingSync: park until the leader's assignment shows up
	if cb, ok := member.TakeSyncCallback(); ok {
		cb(&codec.SyncGroupResp{ErrorCode: codec.UNKNOWN_MEMBER_ID})
	}
	ch := make(chan *codec.SyncGroupResp, 1)
	member.SetSyncCallback(func(resp *codec.SyncGroupResp) {
		ch <- resp
	})
	if g.IsLeader(memberId) {
		c.logger.GroupID(groupId).Infof("assignment received from leader %s for generation %d",
			memberId, g.Generation())
		for _, ga := range groupAssignments {
			if m, ok := g.Member(ga.MemberId); ok {
				m.SetAssignment(ga.MemberAssignment)
			} else {
				c.logger.GroupID(groupId).Warnf("leader assigned unknown member %s", ga.MemberId)
			}
		}
		c.completeSyncLocked(mg)
	}
	waitMs := g.RebalanceTimeoutMs() + 2*c.config.RebalanceTickMs
	mg.mu.Unlock()

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(time.Duration(waitMs) * time.Millisecond):
		c.logger.GroupID(groupId).Errorf("member %s sync wait timed out after %dms", memberId, waitMs)
		return &codec.SyncGroupResp{ErrorCode: codec.REBALANCE_IN_PROGRESS}, nil
	}
}

func (c *GroupCoordinatorMemory) HandleHeartBeat(username, groupId, memberId string, generationId int) *codec.HeartbeatResp {
	start := time.Now()
	resp := c.handleHeartBeat(username, groupId, memberId, generationId)
	if resp.ErrorCode != codec.NONE {
		metrics.HeartbeatFailCount.Inc()
	} else {
		metrics.HeartbeatSuccessCount.Inc()
	}
	metrics.HeartbeatLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp
}

func (c *GroupCoordinatorMemory) handleHeartBeat(username, groupId, memberId string, generationId int) *codec.HeartbeatResp {
	if groupId == "" {
		c.logger.Errorf("member %s heartbeat but groupId is empty", memberId)
		return &codec.HeartbeatResp{ErrorCode: codec.INVALID_GROUP_ID}
	}
	key := c.key(username, groupId)
	mg, ok := c.getGroup(key)
	if !ok {
		// the group does not survive a coordinator restart, clients have to
		// rebalance to rebuild it
		c.logger.GroupID(groupId).Warnf("member %s heartbeat but group not found", memberId)
		return &codec.HeartbeatResp{ErrorCode: codec.REBALANCE_IN_PROGRESS}
	}
	mg.mu.Lock()
	defer mg.mu.Unlock()
	g := mg.g

	if g.Is(group.Dead) {
		return &codec.HeartbeatResp{ErrorCode: codec.UNKNOWN_MEMBER_ID}
	}
	member, err := g.FindMember(memberId)
	if err != nil {
		if c.unknownMemberLimiter.Acquire(key) {
			c.logger.GroupID(groupId).Warnf("heartbeat rejected: %v", err)
		}
		return &codec.HeartbeatResp{ErrorCode: codec.UNKNOWN_MEMBER_ID}
	}
	if generationId != g.Generation() {
		return &codec.HeartbeatResp{ErrorCode: codec.ILLEGAL_GENERATION}
	}
	member.KeepAlive(time.Now())
	if !g.Is(group.Stable) {
		return &codec.HeartbeatResp{ErrorCode: codec.REBALANCE_IN_PROGRESS}
	}
	return &codec.HeartbeatResp{ErrorCode: codec.NONE}
}

func (c *GroupCoordinatorMemory) HandleLeaveGroup(username, groupId string,
	members []*codec.LeaveGroupMember) (*codec.LeaveGroupResp, error) {
	start := time.Now()
	resp, err := c.handleLeaveGroup(username, groupId, members)
	if err != nil || resp.ErrorCode != codec.NONE {
		metrics.LeaveGroupFailCount.Inc()
	} else {
		metrics.LeaveGroupSuccessCount.Inc()
	}
	metrics.LeaveGroupLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp, err
}

func (c *GroupCoordinatorMemory) handleLeaveGroup(username, groupId string,
	members []*codec.LeaveGroupMember) (*codec.LeaveGroupResp, error) {
	if groupId == "" {
		c.logger.Errorf("leave rejected, groupId is empty")
		return &codec.LeaveGroupResp{ErrorCode: codec.INVALID_GROUP_ID}, nil
	}
	key := c.key(username, groupId)
	mg, ok := c.getGroup(key)
	if !ok {
		c.logger.GroupID(groupId).Errorf("leave rejected, unknown group")
		return &codec.LeaveGroupResp{ErrorCode: codec.INVALID_GROUP_ID}, nil
	}
	mg.mu.Lock()
	g := mg.g
	if g.Is(group.Dead) {
		mg.mu.Unlock()
		return &codec.LeaveGroupResp{ErrorCode: codec.UNKNOWN_MEMBER_ID}, nil
	}
	for _, lm := range members {
		member, known := g.Member(lm.MemberId)
		if !known {
			continue
		}
		member.MarkLeaving()
		c.releaseMemberLocked(member)
		g.Remove(lm.MemberId)
		c.logger.GroupID(groupId).Infof("member %s left", lm.MemberId)
	}
	c.afterMembershipChangeLocked(key, mg)
	mg.mu.Unlock()
	return &codec.LeaveGroupResp{ErrorCode: codec.NONE, Members: members}, nil
}

func (c *GroupCoordinatorMemory) DescribeGroup(username, groupId string) (group.GroupSummary, error) {
	mg, ok := c.getGroup(c.key(username, groupId))
	if !ok {
		return group.GroupSummary{}, errors.Errorf("unknown group: %s", groupId)
	}
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.g.Summary()
}

func (c *GroupCoordinatorMemory) DelGroup(username, groupId string) {
	key := c.key(username, groupId)
	mg, ok := c.getGroup(key)
	if !ok {
		return
	}
	mg.mu.Lock()
	for _, member := range mg.g.Members() {
		c.releaseMemberLocked(member)
		mg.g.Remove(member.MemberId())
	}
	c.removeGroupLocked(key, mg)
	mg.mu.Unlock()
}

// releaseMemberLocked fires any callback still parked on the member with a
// terminal error. A pending callback must never be dropped silently.
func (c *GroupCoordinatorMemory) releaseMemberLocked(member *group.Member) {
	if cb, ok := member.TakeJoinCallback(); ok {
		cb(&codec.JoinGroupResp{MemberId: member.MemberId(), ErrorCode: codec.UNKNOWN_MEMBER_ID})
	}
	if cb, ok := member.TakeSyncCallback(); ok {
		cb(&codec.SyncGroupResp{ErrorCode: codec.UNKNOWN_MEMBER_ID})
	}
}

// afterMembershipChangeLocked settles the group after members were removed:
// an empty group dies, a waiting join barrier may now be complete, and an
// otherwise live group goes through another rebalance.
func (c *GroupCoordinatorMemory) afterMembershipChangeLocked(key string, mg *memoryGroup) {
	g := mg.g
	if g.IsEmpty() {
		c.removeGroupLocked(key, mg)
		return
	}
	if g.Is(group.PreparingRebalance) {
		if g.AllMembersRejoined() {
			c.completeJoinLocked(key, mg)
		}
		return
	}
	c.prepareRebalanceLocked(key, mg, "membership changed")
}

func (c *GroupCoordinatorMemory) prepareRebalanceLocked(key string, mg *memoryGroup, reason string) {
	g := mg.g
	if g.Is(group.PreparingRebalance) {
		return
	}
	if g.Is(group.AwaitingSync) {
		// kick waiting syncers back into the join flow
		for _, m := range g.Members() {
			if cb, ok := m.TakeSyncCallback(); ok {
				cb(&codec.SyncGroupResp{ErrorCode: codec.REBALANCE_IN_PROGRESS})
			}
		}
	}
	if err := g.TransitionTo(group.PreparingRebalance); err != nil {
		c.logger.GroupID(g.GroupId()).Errorf("prepare rebalance failed: %v", err)
		return
	}
	metrics.RebalancePreparedCount.Inc()
	c.logger.GroupID(g.GroupId()).Infof("preparing rebalance with old generation %d, reason: %s",
		g.Generation(), reason)
	c.scheduleJoinDeadlineLocked(key, mg)
}

func (c *GroupCoordinatorMemory) scheduleJoinDeadlineLocked(key string, mg *memoryGroup) {
	g := mg.g
	delayMs := g.RebalanceTimeoutMs()
	if delayMs < c.config.InitialDelayedJoinMs {
		delayMs = c.config.InitialDelayedJoinMs
	}
	generation := g.Generation()
	if mg.deadlineTimer != nil {
		mg.deadlineTimer.Stop()
	}
	mg.deadlineTimer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		c.onJoinDeadline(key, generation)
	})
}

// onJoinDeadline force-releases the join barrier: members that never rejoined
// are evicted and the remaining membership advances to the next generation.
func (c *GroupCoordinatorMemory) onJoinDeadline(key string, generation int) {
	mg, ok := c.getGroup(key)
	if !ok {
		return
	}
	mg.mu.Lock()
	defer mg.mu.Unlock()
	g := mg.g
	if !g.Is(group.PreparingRebalance) || g.Generation() != generation {
		return
	}
	for _, m := range g.NotYetRejoined() {
		c.logger.GroupID(g.GroupId()).Warnf("member %s did not rejoin before the rebalance deadline, removing",
			m.MemberId())
		g.Remove(m.MemberId())
	}
	if g.IsEmpty() {
		c.removeGroupLocked(key, mg)
		return
	}
	c.completeJoinLocked(key, mg)
}

// completeJoinLocked releases the join barrier: the generation advances, the
// assignment protocol is re-voted and every parked join request is answered.
// Only the leader learns the full membership.
func (c *GroupCoordinatorMemory) completeJoinLocked(key string, mg *memoryGroup) {
	g := mg.g
	if err := g.InitNextGeneration(); err != nil {
		c.logger.GroupID(g.GroupId()).Errorf("advance generation failed: %v", err)
		for _, m := range g.Members() {
			if cb, ok := m.TakeJoinCallback(); ok {
				cb(&codec.JoinGroupResp{MemberId: m.MemberId(), ErrorCode: codec.UNKNOWN_SERVER_ERROR})
			}
		}
		return
	}
	metrics.RebalanceCompletedCount.Inc()
	c.logger.GroupID(g.GroupId()).Infof("generation %d started with protocol %s, leader %s, %d members",
		g.Generation(), g.Protocol(), g.Leader(), g.Size())

	protocolType := g.ProtocolType()
	var leaderMembers []*codec.Member
	for _, m := range g.Members() {
		metadata, err := m.Metadata(g.Protocol())
		if err != nil {
			c.logger.GroupID(g.GroupId()).Errorf("member %s misses metadata for selected protocol %s",
				m.MemberId(), g.Protocol())
			continue
		}
		leaderMembers = append(leaderMembers, &codec.Member{
			MemberId:        m.MemberId(),
			GroupInstanceId: nil,
			Metadata:        metadata,
		})
	}
	now := time.Now()
	for _, m := range g.Members() {
		cb, ok := m.TakeJoinCallback()
		if !ok {
			continue
		}
		resp := &codec.JoinGroupResp{
			ErrorCode:    codec.NONE,
			GenerationId: g.Generation(),
			ProtocolType: &protocolType,
			ProtocolName: g.Protocol(),
			LeaderId:     g.Leader(),
			MemberId:     m.MemberId(),
		}
		if g.IsLeader(m.MemberId()) {
			resp.Members = leaderMembers
		}
		m.KeepAlive(now)
		cb(resp)
	}
	c.scheduleSyncDeadlineLocked(key, mg)
}

func (c *GroupCoordinatorMemory) scheduleSyncDeadlineLocked(key string, mg *memoryGroup) {
	g := mg.g
	delayMs := g.RebalanceTimeoutMs()
	if delayMs < c.config.RebalanceTickMs {
		delayMs = c.config.RebalanceTickMs
	}
	generation := g.Generation()
	if mg.deadlineTimer != nil {
		mg.deadlineTimer.Stop()
	}
	mg.deadlineTimer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		c.onSyncDeadline(key, generation)
	})
}

// onSyncDeadline evicts members whose sync never arrived, the leader
// included, and sends the survivors through another rebalance.
func (c *GroupCoordinatorMemory) onSyncDeadline(key string, generation int) {
	mg, ok := c.getGroup(key)
	if !ok {
		return
	}
	mg.mu.Lock()
	defer mg.mu.Unlock()
	g := mg.g
	if !g.Is(group.AwaitingSync) || g.Generation() != generation {
		return
	}
	for _, m := range g.Members() {
		if !m.AwaitingSync() {
			c.logger.GroupID(g.GroupId()).Warnf("member %s did not sync before the deadline, removing",
				m.MemberId())
			g.Remove(m.MemberId())
		}
	}
	if g.IsEmpty() {
		c.removeGroupLocked(key, mg)
		return
	}
	c.prepareRebalanceLocked(key, mg, "sync deadline expired")
}

// completeSyncLocked stabilizes the group after the leader delivered the
// assignment and answers every parked sync request with its member's share.
func (c *GroupCoordinatorMemory) completeSyncLocked(mg *memoryGroup) {
	g := mg.g
	if mg.deadlineTimer != nil {
		mg.deadlineTimer.Stop()
		mg.deadlineTimer = nil
	}
	if err := g.TransitionTo(group.Stable); err != nil {
		c.logger.GroupID(g.GroupId()).Errorf("stabilize failed: %v", err)
		return
	}
	now := time.Now()
	for _, m := range g.Members() {
		if cb, ok := m.TakeSyncCallback(); ok {
			m.KeepAlive(now)
			cb(&codec.SyncGroupResp{ErrorCode: codec.NONE, MemberAssignment: m.Assignment()})
		}
	}
	c.logger.GroupID(g.GroupId()).Infof("group is stable at generation %d", g.Generation())
}

func (c *GroupCoordinatorMemory) removeGroupLocked(key string, mg *memoryGroup) {
	g := mg.g
	if mg.deadlineTimer != nil {
		mg.deadlineTimer.Stop()
		mg.deadlineTimer = nil
	}
	if !g.Is(group.Dead) {
		if err := g.TransitionTo(group.Dead); err != nil {
			c.logger.GroupID(g.GroupId()).Errorf("transition to dead failed: %v", err)
		}
	}
	c.mutex.Lock()
	if _, ok := c.groupManager[key]; ok {
		delete(c.groupManager, key)
		metrics.GroupCount.Dec()
	}
	c.mutex.Unlock()
	c.logger.GroupID(g.GroupId()).Infof("group removed")
}

func (c *GroupCoordinatorMemory) currentJoinRespLocked(g *group.Group, member *group.Member) *codec.JoinGroupResp {
	protocolType := g.ProtocolType()
	resp := &codec.JoinGroupResp{
		ErrorCode:    codec.NONE,
		GenerationId: g.Generation(),
		ProtocolType: &protocolType,
		ProtocolName: g.Protocol(),
		LeaderId:     g.Leader(),
		MemberId:     member.MemberId(),
	}
	if g.IsLeader(member.MemberId()) {
		for _, m := range g.Members() {
			metadata, err := m.Metadata(g.Protocol())
			if err != nil {
				continue
			}
			resp.Members = append(resp.Members, &codec.Member{MemberId: m.MemberId(), Metadata: metadata})
		}
	}
	return resp
}

func (c *GroupCoordinatorMemory) sweepLoop() {
	ticker := time.NewTicker(time.Duration(c.config.CleanupIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.expireStaleSessions()
		}
	}
}

// expireStaleSessions removes members whose heartbeat went silent for longer
// than their session timeout. Members with a parked join or sync request are
// exempt, the barrier deadlines deal with those.
func (c *GroupCoordinatorMemory) expireStaleSessions() {
	type entry struct {
		key string
		mg  *memoryGroup
	}
	c.mutex.RLock()
	groups := make([]entry, 0, len(c.groupManager))
	for key, mg := range c.groupManager {
		groups = append(groups, entry{key: key, mg: mg})
	}
	c.mutex.RUnlock()

	now := time.Now()
	for _, e := range groups {
		e.mg.mu.Lock()
		g := e.mg.g
		if g.Is(group.Dead) {
			e.mg.mu.Unlock()
			continue
		}
		var expired []string
		for _, m := range g.Members() {
			if m.AwaitingJoin() || m.AwaitingSync() {
				continue
			}
			last := m.LatestHeartbeat()
			if last.IsZero() {
				continue
			}
			if now.Sub(last) > time.Duration(m.SessionTimeoutMs())*time.Millisecond {
				expired = append(expired, m.MemberId())
			}
		}
		if len(expired) > 0 {
			for _, memberId := range expired {
				c.logger.GroupID(g.GroupId()).Warnf("member %s session expired, removing", memberId)
				g.Remove(memberId)
			}
			metrics.SessionExpiredCount.Add(float64(len(expired)))
			c.afterMembershipChangeLocked(e.key, e.mg)
		}
		e.mg.mu.Unlock()
	}
}
