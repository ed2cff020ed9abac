// Package metrics defines the sidecar's Prometheus metric surface and its
// HTTP exposition, grounded on the original sidecar's StealthMetricsCollector
// naming and on the teacher's shared/prometheus.Service exposition shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector owns every metric the sidecar exposes. All names carry the
// stealth_sidecar_ namespace prefix verbatim from the original implementation,
// since that prefix is a wire-visible Prometheus metric name, not sidecar code.
type Collector struct {
	SubnetsJoinedTotal         *prometheus.CounterVec
	SubnetsLeftTotal           *prometheus.CounterVec
	CurrentSubscribedSubnets   prometheus.Gauge
	EpochReshuffleDuration     prometheus.Histogram
	ProviderRequestsTotal      *prometheus.CounterVec
	ProviderRequestDuration    *prometheus.HistogramVec

	AttestationsRelayedTotal  prometheus.Counter
	AttestationsReceivedTotal prometheus.Counter
	FriendRelayLatency        prometheus.Histogram
	FriendMessagesSentTotal   *prometheus.CounterVec
	FriendMessagesRecvTotal   *prometheus.CounterVec
	RlnProofsGeneratedTotal   prometheus.Counter
	RlnProofsVerifiedTotal    *prometheus.CounterVec
	RateLimitViolationsTotal  prometheus.Counter

	BandwidthBytesTotal *prometheus.CounterVec
	PeerConnections     *prometheus.GaugeVec
	MessageSizeBytes    *prometheus.HistogramVec

	RainbowAttackAttemptsDetected prometheus.Counter
	PrivacyEventsTotal             *prometheus.CounterVec
}

// NewCollector constructs and registers every metric against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		SubnetsJoinedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_subnets_joined_total",
			Help: "Total number of attestation subnets joined",
		}, []string{"subnet_type"}),
		SubnetsLeftTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_subnets_left_total",
			Help: "Total number of attestation subnets left",
		}, []string{"subnet_type"}),
		CurrentSubscribedSubnets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stealth_sidecar_current_subscribed_subnets",
			Help: "Current number of subscribed attestation subnets",
		}),
		EpochReshuffleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "stealth_sidecar_epoch_reshuffle_duration_seconds",
			Help: "Time taken to reshuffle subnets at epoch boundary",
		}),
		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_provider_requests_total",
			Help: "Total number of networking/RLN provider requests",
		}, []string{"endpoint", "status"}),
		ProviderRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "stealth_sidecar_provider_request_duration_seconds",
			Help: "Duration of networking/RLN provider requests",
		}, []string{"endpoint"}),

		AttestationsRelayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stealth_sidecar_attestations_relayed_total",
			Help: "Total number of attestations relayed through friends",
		}),
		AttestationsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stealth_sidecar_attestations_received_total",
			Help: "Total number of attestations received from friends",
		}),
		FriendRelayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "stealth_sidecar_friend_relay_latency_seconds",
			Help: "End-to-end latency for relaying attestations through friends",
		}),
		FriendMessagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_friend_messages_sent_total",
			Help: "Total number of messages sent to friend nodes",
		}, []string{"friend_id", "status"}),
		FriendMessagesRecvTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_friend_messages_received_total",
			Help: "Total number of messages received from friend nodes",
		}, []string{"friend_id"}),
		RlnProofsGeneratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stealth_sidecar_rln_proofs_generated_total",
			Help: "Total number of RLN proofs generated",
		}),
		RlnProofsVerifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_rln_proofs_verified_total",
			Help: "Total number of RLN proofs verified",
		}, []string{"result"}),
		RateLimitViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stealth_sidecar_rate_limit_violations_total",
			Help: "Total number of rate limit violations",
		}),

		BandwidthBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_bandwidth_bytes_total",
			Help: "Total bytes observed on gossip ingress, by message kind",
		}, []string{"kind"}),
		PeerConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stealth_sidecar_peer_connections",
			Help: "Current peer connection count, by role",
		}, []string{"role"}),
		MessageSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "stealth_sidecar_message_size_bytes",
			Help: "Observed message sizes",
		}, []string{"kind"}),

		RainbowAttackAttemptsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stealth_sidecar_rainbow_attack_attempts_detected",
			Help: "Heuristically detected first-seen-correlation probe attempts",
		}),
		PrivacyEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stealth_sidecar_privacy_events_total",
			Help: "Privacy-relevant lifecycle events, by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.SubnetsJoinedTotal, c.SubnetsLeftTotal, c.CurrentSubscribedSubnets, c.EpochReshuffleDuration,
		c.ProviderRequestsTotal, c.ProviderRequestDuration,
		c.AttestationsRelayedTotal, c.AttestationsReceivedTotal, c.FriendRelayLatency,
		c.FriendMessagesSentTotal, c.FriendMessagesRecvTotal, c.RlnProofsGeneratedTotal,
		c.RlnProofsVerifiedTotal, c.RateLimitViolationsTotal,
		c.BandwidthBytesTotal, c.PeerConnections, c.MessageSizeBytes,
		c.RainbowAttackAttemptsDetected, c.PrivacyEventsTotal,
	)
	return c
}
