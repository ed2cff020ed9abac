package relay

// Stats is a point-in-time snapshot of the relay's activity, mirroring the
// fields an operator dashboard or the supervisor's health check would want.
type Stats struct {
	MessagesSent            uint64
	MessagesReceived        uint64
	FriendsConnected        int
	AverageLatencyMs        float64
	RateLimitViolations     uint64
	BandwidthBytesPerSecond float64
}
