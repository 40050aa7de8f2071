package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/mqtt"
)

// Publisher turns records into retained MQTT messages, publishing only
// the fields whose values changed since the previous record of the same
// kind. Retained messages mean subscribers always see the full current
// state, so skipping unchanged fields costs nothing and keeps broker
// traffic proportional to what actually moved.
//
// A Publisher tracks state per record kind and per battery and DCB
// index, so readings from different packs never suppress each other.
// It is not safe for concurrent use; the bridge loop is its only
// caller.
type Publisher struct {
	client MQTTClient
	topics mqtt.Topics

	prevStatus    []field
	prevDaily     []field
	prevBatteries map[uint64]*batteryState
}

type batteryState struct {
	scalars []field
	dcbs    map[uint64][]field
}

// NewPublisher creates a Publisher that publishes through the given
// client, under the client's topic prefix.
func NewPublisher(client MQTTClient) *Publisher {
	return &Publisher{
		client:        client,
		topics:        client.Topics(),
		prevBatteries: make(map[uint64]*batteryState),
	}
}

// PublishInfo publishes the system info document as a single retained
// JSON payload on the info topic. Info is published once per device
// connection and never diffed.
//
// Returns an error wrapping ErrSerializationFailed if the record cannot
// be encoded, or the client's error if the publish fails.
func (p *Publisher) PublishInfo(record *SystemInfoRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if err := p.client.PublishRetained(p.topics.Info(), payload); err != nil {
		return fmt.Errorf("publishing %s: %w", p.topics.Info(), err)
	}
	return nil
}

// PublishStatus publishes the changed fields of a live status record
// under the status branch.
//
// Returns the number of messages published. On error the previous
// state is left untouched, so the next cycle retries every field that
// had changed.
func (p *Publisher) PublishStatus(record *StatusRecord) (int, error) {
	fields := record.fields()
	published, err := p.publishChanged(p.topics.Status, p.prevStatus, fields)
	if err != nil {
		return published, err
	}
	p.prevStatus = fields
	return published, nil
}

// PublishDailyStatistics publishes the changed fields of a daily
// statistics record under the status_sums branch.
func (p *Publisher) PublishDailyStatistics(record *DailyRecord) (int, error) {
	fields := record.fields()
	published, err := p.publishChanged(p.topics.StatusSums, p.prevDaily, fields)
	if err != nil {
		return published, err
	}
	p.prevDaily = fields
	return published, nil
}

// PublishBatteries publishes the changed fields of each pack record and
// its DCB children. Packs are keyed by device index, so a two-pack
// system tracks two independent previous states.
//
// Returns the total number of messages published across all packs.
func (p *Publisher) PublishBatteries(records []BatteryRecord) (int, error) {
	total := 0
	for i := range records {
		published, err := p.publishBattery(&records[i])
		total += published
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Publisher) publishBattery(record *BatteryRecord) (int, error) {
	state := p.prevBatteries[record.Index]
	if state == nil {
		state = &batteryState{dcbs: make(map[uint64][]field)}
		p.prevBatteries[record.Index] = state
	}

	fields := record.fields()
	published, err := p.publishChanged(func(name string) string {
		return p.topics.Battery(record.Index, name)
	}, state.scalars, fields)
	if err != nil {
		return published, err
	}
	state.scalars = fields

	for i := range record.DCBs {
		dcb := &record.DCBs[i]
		dcbFields := dcb.fields()
		n, err := p.publishChanged(func(name string) string {
			return p.topics.DCB(record.Index, dcb.Index, name)
		}, state.dcbs[dcb.Index], dcbFields)
		published += n
		if err != nil {
			return published, err
		}
		state.dcbs[dcb.Index] = dcbFields
	}

	return published, nil
}

// publishChanged publishes every field of current whose value differs
// from the same position in previous. A previous list of a different
// length (including the first cycle's nil) publishes everything.
func (p *Publisher) publishChanged(topicFor func(string) string, previous, current []field) (int, error) {
	published := 0
	for i, f := range current {
		if len(previous) == len(current) && valuesEqual(previous[i].value, f.value) {
			continue
		}
		topic := topicFor(f.name)
		if err := p.client.PublishRetained(topic, []byte(formatValue(f.value))); err != nil {
			return published, fmt.Errorf("publishing %s: %w", topic, err)
		}
		published++
	}
	return published, nil
}

// valuesEqual compares two field values. Slices compare element-wise
// and timestamps by instant; everything else is a plain comparison.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []float64:
		bv, ok := b.([]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}
