package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the inbound-to-reply flow.
type BridgeMetrics struct {
	inboundTotal       *prometheus.CounterVec
	replySourceTotal   *prometheus.CounterVec
	completionTotal    *prometheus.CounterVec
	completionLatency  prometheus.Histogram
	deliveryTotal      *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
	transcriptionTotal *prometheus.CounterVec
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybridge",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound webhook messages",
		}, []string{"channel", "status"}),
		replySourceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybridge",
			Subsystem: "replies",
			Name:      "resolved_total",
			Help:      "Replies by the rule layer that produced them",
		}, []string{"source"}),
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybridge",
			Subsystem: "completion",
			Name:      "calls_total",
			Help:      "Completion calls by outcome",
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replybridge",
			Subsystem: "completion",
			Name:      "latency_seconds",
			Help:      "Latency of completion calls",
			Buckets:   prometheus.DefBuckets,
		}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybridge",
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Outbound reply sends by channel and status",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replybridge",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		transcriptionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybridge",
			Subsystem: "audio",
			Name:      "transcriptions_total",
			Help:      "Audio intake and transcription attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.replySourceTotal,
		m.completionTotal,
		m.completionLatency,
		m.deliveryTotal,
		m.webhookLatency,
		m.transcriptionTotal,
	)
	return m
}

func (m *BridgeMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *BridgeMetrics) ObserveReplySource(source string) {
	if m == nil {
		return
	}
	m.replySourceTotal.WithLabelValues(source).Inc()
}

func (m *BridgeMetrics) ObserveCompletion(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.completionTotal.WithLabelValues(outcome).Inc()
	m.completionLatency.Observe(seconds)
}

func (m *BridgeMetrics) ObserveDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(channel, status).Inc()
}

func (m *BridgeMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *BridgeMetrics) ObserveTranscription(outcome string) {
	if m == nil {
		return
	}
	m.transcriptionTotal.WithLabelValues(outcome).Inc()
}
