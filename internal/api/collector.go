package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements prometheus.Collector over the bridge's
// operational counters.
//
// Collect reads the atomic snapshot the bridge maintains, so scrapes
// never touch the device or the broker.
type Collector struct {
	provider MetricsProvider

	// Metrics
	deviceConnected    *prometheus.Desc
	brokerConnected    *prometheus.Desc
	statusPolls        *prometheus.Desc
	statisticsPolls    *prometheus.Desc
	messagesPublished  *prometheus.Desc
	archiveErrors      *prometheus.Desc
	lastStatusPoll     *prometheus.Desc
	lastStatisticsPoll *prometheus.Desc
}

// NewCollector creates a bridge collector. All series carry the
// device_id label so several bridges can share one Prometheus.
func NewCollector(provider MetricsProvider, deviceID string) *Collector {
	labels := prometheus.Labels{"device_id": deviceID}
	return &Collector{
		provider: provider,
		deviceConnected: prometheus.NewDesc(
			"e3dc_bridge_device_connected",
			"Whether the device connection is up (1=yes, 0=no)",
			nil, labels,
		),
		brokerConnected: prometheus.NewDesc(
			"e3dc_bridge_broker_connected",
			"Whether the MQTT broker connection is up (1=yes, 0=no)",
			nil, labels,
		),
		statusPolls: prometheus.NewDesc(
			"e3dc_bridge_status_polls_total",
			"Completed live status polls",
			nil, labels,
		),
		statisticsPolls: prometheus.NewDesc(
			"e3dc_bridge_statistics_polls_total",
			"Completed daily statistics and battery detail polls",
			nil, labels,
		),
		messagesPublished: prometheus.NewDesc(
			"e3dc_bridge_messages_published_total",
			"MQTT messages published",
			nil, labels,
		),
		archiveErrors: prometheus.NewDesc(
			"e3dc_bridge_archive_errors_total",
			"Snapshot archive writes or prunes that failed",
			nil, labels,
		),
		lastStatusPoll: prometheus.NewDesc(
			"e3dc_bridge_last_status_poll_timestamp_seconds",
			"Device-reported time of the last status poll as a Unix timestamp",
			nil, labels,
		),
		lastStatisticsPoll: prometheus.NewDesc(
			"e3dc_bridge_last_statistics_poll_timestamp_seconds",
			"Device-reported time of the last statistics poll as a Unix timestamp",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.deviceConnected
	ch <- c.brokerConnected
	ch <- c.statusPolls
	ch <- c.statisticsPolls
	ch <- c.messagesPublished
	ch <- c.archiveErrors
	ch <- c.lastStatusPoll
	ch <- c.lastStatisticsPoll
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.provider.GetMetrics()

	ch <- prometheus.MustNewConstMetric(c.deviceConnected, prometheus.GaugeValue, boolGauge(m.DeviceConnected))
	ch <- prometheus.MustNewConstMetric(c.brokerConnected, prometheus.GaugeValue, boolGauge(m.BrokerConnected))
	ch <- prometheus.MustNewConstMetric(c.statusPolls, prometheus.CounterValue, float64(m.StatusPolls))
	ch <- prometheus.MustNewConstMetric(c.statisticsPolls, prometheus.CounterValue, float64(m.StatisticsPolls))
	ch <- prometheus.MustNewConstMetric(c.messagesPublished, prometheus.CounterValue, float64(m.MessagesPublished))
	ch <- prometheus.MustNewConstMetric(c.archiveErrors, prometheus.CounterValue, float64(m.ArchiveErrors))

	// Poll timestamps appear only once a poll has happened, so alerting
	// on absence works from the first scrape.
	if !m.LastStatusPoll.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastStatusPoll, prometheus.GaugeValue, float64(m.LastStatusPoll.Unix()))
	}
	if !m.LastStatisticsPoll.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastStatisticsPoll, prometheus.GaugeValue, float64(m.LastStatisticsPoll.Unix()))
	}
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
