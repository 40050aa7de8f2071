package bridge

import "time"

// BridgeMetrics contains metrics data for the API health and metrics
// endpoints.
type BridgeMetrics struct {
	DeviceConnected bool
	BrokerConnected bool

	StatusPolls       uint64
	StatisticsPolls   uint64
	MessagesPublished uint64
	ArchiveErrors     uint64

	LastStatusPoll     time.Time
	LastStatisticsPoll time.Time
}

// GetMetrics returns current bridge metrics for the API endpoints.
func (b *Bridge) GetMetrics() BridgeMetrics {
	m := BridgeMetrics{
		DeviceConnected:   b.device.IsConnected(),
		BrokerConnected:   b.mqtt.IsConnected(),
		StatusPolls:       b.statusPolls.Load(),
		StatisticsPolls:   b.statisticsPolls.Load(),
		MessagesPublished: b.messagesPublished.Load(),
		ArchiveErrors:     b.archiveErrors.Load(),
	}

	if ts := b.lastStatusPoll.Load(); ts > 0 {
		m.LastStatusPoll = time.Unix(ts, 0)
	}
	if ts := b.lastStatisticsPoll.Load(); ts > 0 {
		m.LastStatisticsPoll = time.Unix(ts, 0)
	}

	return m
}
