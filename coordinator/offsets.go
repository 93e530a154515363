package coordinator

import (
	"sync"
	"time"

	"github.com/protocol-laboratory/kafka-codec-go/codec"

	"github.com/protocol-laboratory/kafka-group-go/constant"
	"github.com/protocol-laboratory/kafka-group-go/group"
	"github.com/protocol-laboratory/kafka-group-go/metrics"
)

type offsetKey struct {
	groupKey  string
	topic     string
	partition int
}

type offsetEntry struct {
	offset     int64
	commitTime time.Time
}

// offsetStore keeps committed offsets in memory, keyed by tenant group,
// topic and partition. It has its own lock so fetches never contend with
// group state changes.
type offsetStore struct {
	mu      sync.RWMutex
	entries map[offsetKey]offsetEntry
}

func newOffsetStore() *offsetStore {
	return &offsetStore{entries: make(map[offsetKey]offsetEntry)}
}

func (s *offsetStore) commit(groupKey, topic string, partition int, offset int64) {
	s.mu.Lock()
	s.entries[offsetKey{groupKey: groupKey, topic: topic, partition: partition}] = offsetEntry{
		offset:     offset,
		commitTime: time.Now(),
	}
	s.mu.Unlock()
}

func (s *offsetStore) fetch(groupKey, topic string, partition int) (int64, bool) {
	s.mu.RLock()
	entry, ok := s.entries[offsetKey{groupKey: groupKey, topic: topic, partition: partition}]
	s.mu.RUnlock()
	if !ok {
		return constant.UnknownOffset, false
	}
	return entry.offset, true
}

func (c *GroupCoordinatorMemory) HandleOffsetCommit(username, groupId, memberId string, generationId int,
	topic string, req *codec.OffsetCommitPartitionReq) (*codec.OffsetCommitPartitionResp, error) {
	start := time.Now()
	resp, err := c.handleOffsetCommit(username, groupId, memberId, generationId, topic, req)
	if err != nil || resp.ErrorCode != codec.NONE {
		metrics.OffsetCommitFailCount.Inc()
	} else {
		metrics.OffsetCommitSuccessCount.Inc()
	}
	metrics.OffsetCommitLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp, err
}

func (c *GroupCoordinatorMemory) handleOffsetCommit(username, groupId, memberId string, generationId int,
	topic string, req *codec.OffsetCommitPartitionReq) (*codec.OffsetCommitPartitionResp, error) {
	key := c.key(username, groupId)
	mg, ok := c.getGroup(key)
	if !ok {
		return &codec.OffsetCommitPartitionResp{PartitionId: req.PartitionId, ErrorCode: codec.UNKNOWN_MEMBER_ID}, nil
	}
	mg.mu.Lock()
	g := mg.g
	if g.Is(group.Dead) || !g.HasMember(memberId) {
		mg.mu.Unlock()
		return &codec.OffsetCommitPartitionResp{PartitionId: req.PartitionId, ErrorCode: codec.UNKNOWN_MEMBER_ID}, nil
	}
	if g.Is(group.AwaitingSync) {
		// no commits until the new assignment is out
		mg.mu.Unlock()
		return &codec.OffsetCommitPartitionResp{PartitionId: req.PartitionId, ErrorCode: codec.REBALANCE_IN_PROGRESS}, nil
	}
	if generationId != g.Generation() {
		mg.mu.Unlock()
		return &codec.OffsetCommitPartitionResp{PartitionId: req.PartitionId, ErrorCode: codec.ILLEGAL_GENERATION}, nil
	}
	mg.mu.Unlock()
	c.offsets.commit(key, topic, req.PartitionId, req.Offset)
	return &codec.OffsetCommitPartitionResp{PartitionId: req.PartitionId, ErrorCode: codec.NONE}, nil
}

func (c *GroupCoordinatorMemory) HandleOffsetFetch(username, groupId, topic string,
	req *codec.OffsetFetchPartitionReq) (*codec.OffsetFetchPartitionResp, error) {
	start := time.Now()
	resp, err := c.handleOffsetFetch(username, groupId, topic, req)
	if err != nil || resp.ErrorCode != codec.NONE {
		metrics.OffsetFetchFailCount.Inc()
	} else {
		metrics.OffsetFetchSuccessCount.Inc()
	}
	metrics.OffsetFetchLatency.Observe(float64(time.Since(start).Milliseconds()))
	return resp, err
}

// handleOffsetFetch serves reads in every group state. A consumer resuming
// after a crash has to fetch before it can join anything.
func (c *GroupCoordinatorMemory) handleOffsetFetch(username, groupId, topic string,
	req *codec.OffsetFetchPartitionReq) (*codec.OffsetFetchPartitionResp, error) {
	offset, _ := c.offsets.fetch(c.key(username, groupId), topic, req.PartitionId)
	return &codec.OffsetFetchPartitionResp{
		PartitionId: req.PartitionId,
		Offset:      offset,
		LeaderEpoch: -1,
		Metadata:    nil,
		ErrorCode:   codec.NONE,
	}, nil
}
