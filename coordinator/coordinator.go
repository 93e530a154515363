package coordinator

import (
	"github.com/protocol-laboratory/kafka-codec-go/codec"

	"github.com/protocol-laboratory/kafka-group-go/group"
)

// GroupCoordinator drives the consumer-group state machines in response to
// client requests. Implementations own one exclusive-access domain per group
// id; requests for different groups proceed fully in parallel.
type GroupCoordinator interface {
	HandleJoinGroup(username, groupId, memberId, clientId, clientHost, protocolType string,
		sessionTimeoutMs int, protocols []*codec.GroupProtocol) (*codec.JoinGroupResp, error)

	HandleSyncGroup(username, groupId, memberId string, generationId int,
		groupAssignments []*codec.GroupAssignment) (*codec.SyncGroupResp, error)

	HandleHeartBeat(username, groupId, memberId string, generationId int) *codec.HeartbeatResp

	HandleLeaveGroup(username, groupId string, members []*codec.LeaveGroupMember) (*codec.LeaveGroupResp, error)

	HandleOffsetCommit(username, groupId, memberId string, generationId int,
		topic string, req *codec.OffsetCommitPartitionReq) (*codec.OffsetCommitPartitionResp, error)

	HandleOffsetFetch(username, groupId, topic string,
		req *codec.OffsetFetchPartitionReq) (*codec.OffsetFetchPartitionResp, error)

	// DescribeGroup reports a consistent snapshot of the group, taken under
	// the group's lock.
	DescribeGroup(username, groupId string) (group.GroupSummary, error)

	DelGroup(username, groupId string)

	Close()
}
