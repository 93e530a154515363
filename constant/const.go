package constant

const (
	EmptyMemberId = ""

	DefaultOffset = int64(0)
	UnknownOffset = int64(-1)
)

const (
	DefaultMinSessionTimeoutMs  = 6000
	DefaultMaxSessionTimeoutMs  = 300000
	DefaultInitialDelayedJoinMs = 3000
	DefaultRebalanceTickMs      = 500
	DefaultCleanupIntervalMs    = 3000
)
