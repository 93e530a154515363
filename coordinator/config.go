package coordinator

import (
	"github.com/protocol-laboratory/kafka-group-go/constant"
	"github.com/protocol-laboratory/kafka-group-go/log"
)

type Config struct {
	// MaxConsumersPerGroup caps group membership, 0 means unlimited.
	MaxConsumersPerGroup int

	GroupMinSessionTimeoutMs int
	GroupMaxSessionTimeoutMs int

	// InitialDelayedJoinMs is the floor on the join deadline of a rebalance,
	// so a burst of clients starting together lands in one round even when
	// their session timeouts are short.
	InitialDelayedJoinMs int

	// RebalanceTickMs pads the wait deadline of parked requests past the
	// group's rebalance timeout.
	RebalanceTickMs int

	// CleanupIntervalMs is how often the session sweeper scans for members
	// whose heartbeat went silent.
	CleanupIntervalMs int

	Logger log.Logger
}

func (c *Config) normalize() {
	if c.GroupMinSessionTimeoutMs <= 0 {
		c.GroupMinSessionTimeoutMs = constant.DefaultMinSessionTimeoutMs
	}
	if c.GroupMaxSessionTimeoutMs <= 0 {
		c.GroupMaxSessionTimeoutMs = constant.DefaultMaxSessionTimeoutMs
	}
	if c.InitialDelayedJoinMs <= 0 {
		c.InitialDelayedJoinMs = constant.DefaultInitialDelayedJoinMs
	}
	if c.RebalanceTickMs <= 0 {
		c.RebalanceTickMs = constant.DefaultRebalanceTickMs
	}
	if c.CleanupIntervalMs <= 0 {
		c.CleanupIntervalMs = constant.DefaultCleanupIntervalMs
	}
	if c.Logger == nil {
		c.Logger = log.NewLogger()
	}
}
