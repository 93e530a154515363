package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/protocol-laboratory/kafka-codec-go/codec"
	"github.com/sirupsen/logrus"

	"github.com/protocol-laboratory/kafka-group-go/coordinator"
	"github.com/protocol-laboratory/kafka-group-go/log"
)

// Runs an in-process coordinator, walks two simulated consumers through a
// full rebalance and keeps them heartbeating. Metrics are served on :8081.
func main() {
	logger := log.NewLoggerWithLogrus(logrus.StandardLogger(), &logrus.TextFormatter{FullTimestamp: true})
	c := coordinator.NewGroupCoordinatorMemory(&coordinator.Config{
		GroupMinSessionTimeoutMs: 1000,
		InitialDelayedJoinMs:     1000,
		Logger:                   logger,
	})
	defer c.Close()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":8081", nil); err != nil {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()

	go runConsumer(c, logger, "demo-client-1")
	go runConsumer(c, logger, "demo-client-2")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
}

func runConsumer(c *coordinator.GroupCoordinatorMemory, logger log.Logger, clientId string) {
	const groupId = "demo-group"
	protocols := []*codec.GroupProtocol{
		{ProtocolName: "range", ProtocolMetadata: []byte("demo-topic")},
	}
	memberId := ""
	for {
		joinResp, err := c.HandleJoinGroup("demo", groupId, memberId, clientId, "127.0.0.1",
			"consumer", 6000, protocols)
		if err != nil {
			logger.ClientID(clientId).Warnf("join error: %v, retrying", err)
			time.Sleep(time.Second)
			continue
		}
		if joinResp.ErrorCode != codec.NONE {
			logger.ClientID(clientId).Warnf("join failed with code %d, retrying", joinResp.ErrorCode)
			time.Sleep(time.Second)
			continue
		}
		memberId = joinResp.MemberId

		var assignments []*codec.GroupAssignment
		if joinResp.LeaderId == memberId {
			for i, m := range joinResp.Members {
				assignments = append(assignments, &codec.GroupAssignment{
					MemberId:         m.MemberId,
					MemberAssignment: []byte(fmt.Sprintf("partition-%d", i)),
				})
			}
		}
		syncResp, err := c.HandleSyncGroup("demo", groupId, memberId, joinResp.GenerationId, assignments)
		if err != nil || syncResp.ErrorCode != codec.NONE {
			continue
		}
		logger.ClientID(clientId).GroupID(groupId).Infof("generation %d assignment: %s",
			joinResp.GenerationId, syncResp.MemberAssignment)

		for {
			time.Sleep(2 * time.Second)
			heartbeat := c.HandleHeartBeat("demo", groupId, memberId, joinResp.GenerationId)
			if heartbeat.ErrorCode != codec.NONE {
				logger.ClientID(clientId).GroupID(groupId).Infof("heartbeat code %d, rejoining", heartbeat.ErrorCode)
				break
			}
		}
	}
}
