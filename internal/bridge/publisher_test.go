package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/e3dc"
)

func sampleStatusRecord() StatusRecord {
	return NewStatusRecord(&e3dc.Status{
		Timestamp:       testStamp,
		PowerBattery:    -1500,
		PowerWB:         120,
		PowerHome:       850,
		PowerPV:         3200,
		PowerGrid:       -850,
		PowerAdd:        -50,
		BatterySOC:      72,
		Autarky:         95.456,
		SelfConsumption: 100,
	})
}

func sampleBatteryRecord() BatteryRecord {
	return NewBatteryRecord(&e3dc.BatteryData{
		Index:         0,
		Timestamp:     testStamp,
		RSOC:          72.456,
		ModuleVoltage: 48.1234,
		DeviceName:    "BAT_1",
		DCBCount:      1,
		DCBs: []e3dc.DCBData{{
			Index:            0,
			Voltage:          48.9876,
			SOC:              72.456,
			CellTemperatures: []float64{27.456, 27.654},
			CellVoltages:     []float64{3.4987, 3.5012},
		}},
	})
}

func TestPublishStatusInitial(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleStatusRecord()
	published, err := publisher.PublishStatus(&record)
	if err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if published != 15 {
		t.Errorf("published = %d, want all 15 fields on first publish", published)
	}

	// Topic order is part of the contract.
	wantOrder := []string{
		"time", "additional", "autarky",
		"battery_charge", "battery_discharge", "battery_consumption",
		"consumption_from_grid", "export_to_grid", "grid_production",
		"house_consumption", "self_consumption",
		"solar_production", "solar_production_excess",
		"state_of_charge", "wb_consumption",
	}
	topics := broker.Topics()
	messages := broker.GetPublished()
	if len(messages) != len(wantOrder) {
		t.Fatalf("messages = %d, want %d", len(messages), len(wantOrder))
	}
	for i, name := range wantOrder {
		if messages[i].Topic != topics.Status(name) {
			t.Errorf("message %d topic = %s, want %s", i, messages[i].Topic, topics.Status(name))
		}
	}

	if got := broker.payloadFor(t, topics.Status("time")); got != "2025-06-15T10:30:00Z" {
		t.Errorf("time payload = %q", got)
	}
	if got := broker.payloadFor(t, topics.Status("battery_discharge")); got != "1500" {
		t.Errorf("battery_discharge payload = %q, want 1500", got)
	}
	if got := broker.payloadFor(t, topics.Status("additional")); got != "50" {
		t.Errorf("additional payload = %q, want 50", got)
	}
}

func TestPublishStatusSkipsUnchanged(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleStatusRecord()
	if _, err := publisher.PublishStatus(&record); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	broker.ClearPublished()

	same := sampleStatusRecord()
	published, err := publisher.PublishStatus(&same)
	if err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if published != 0 {
		t.Errorf("published = %d, want 0 for an identical record", published)
	}
	if n := len(broker.GetPublished()); n != 0 {
		t.Errorf("broker received %d messages, want 0", n)
	}
}

func TestPublishStatusSingleChange(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleStatusRecord()
	if _, err := publisher.PublishStatus(&record); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	broker.ClearPublished()

	changed := sampleStatusRecord()
	changed.Autarky = 96.0
	published, err := publisher.PublishStatus(&changed)
	if err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if published != 1 {
		t.Errorf("published = %d, want exactly 1", published)
	}

	messages := broker.GetPublished()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	if want := broker.Topics().Status("autarky"); messages[0].Topic != want {
		t.Errorf("topic = %s, want %s", messages[0].Topic, want)
	}
	if messages[0].Payload != "96" {
		t.Errorf("payload = %q, want 96", messages[0].Payload)
	}
}

func TestPublishStatusTimeChange(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleStatusRecord()
	if _, err := publisher.PublishStatus(&record); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	broker.ClearPublished()

	later := sampleStatusRecord()
	later.Time = testStamp.Add(30 * time.Second)
	published, err := publisher.PublishStatus(&later)
	if err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if published != 1 {
		t.Fatalf("published = %d, want only the timestamp", published)
	}
	if want := broker.Topics().Status("time"); broker.GetPublished()[0].Topic != want {
		t.Errorf("topic = %s, want %s", broker.GetPublished()[0].Topic, want)
	}
}

func TestPublishStatusErrorKeepsState(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleStatusRecord()
	if _, err := publisher.PublishStatus(&record); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}

	broker.SetPublishError(errors.New("not connected"))
	changed := sampleStatusRecord()
	changed.Autarky = 96.0
	if _, err := publisher.PublishStatus(&changed); err == nil {
		t.Fatal("PublishStatus() should surface the broker error")
	}

	// After the broker recovers, the change still goes out.
	broker.SetPublishError(nil)
	broker.ClearPublished()
	published, err := publisher.PublishStatus(&changed)
	if err != nil {
		t.Fatalf("PublishStatus() after recovery error = %v", err)
	}
	if published != 1 {
		t.Errorf("published = %d, want the failed change republished", published)
	}
}

func TestPublishDailyStatistics(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := NewDailyRecord(&e3dc.DailyStatistics{
		Timestamp:          testStamp,
		Autarky:            95.456,
		Consumption:        12345,
		SolarProduction:    23456,
		ConsumedProduction: 87.654,
		BatPowerIn:         5600,
		BatPowerOut:        4200,
		GridPowerIn:        9800,
		GridPowerOut:       1200,
		StateOfCharge:      64.456,
		Start:              time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Timespan:           24 * time.Hour,
	})

	published, err := publisher.PublishDailyStatistics(&record)
	if err != nil {
		t.Fatalf("PublishDailyStatistics() error = %v", err)
	}
	if published != 12 {
		t.Fatalf("published = %d, want all 12 fields", published)
	}

	wantOrder := []string{
		"time", "autarky_today", "self_consumption_today",
		"solar_production_today", "house_consumption_today",
		"battery_charge_today", "battery_discharge_today",
		"export_to_grid_today", "consumption_from_grid_today",
		"state_of_charge_today", "start", "timespan",
	}
	topics := broker.Topics()
	messages := broker.GetPublished()
	for i, name := range wantOrder {
		if messages[i].Topic != topics.StatusSums(name) {
			t.Errorf("message %d topic = %s, want %s", i, messages[i].Topic, topics.StatusSums(name))
		}
	}

	if got := broker.payloadFor(t, topics.StatusSums("autarky_today")); got != "95.5" {
		t.Errorf("autarky_today payload = %q, want 95.5", got)
	}
	if got := broker.payloadFor(t, topics.StatusSums("timespan")); got != "24h0m0s" {
		t.Errorf("timespan payload = %q, want 24h0m0s", got)
	}
	if got := broker.payloadFor(t, topics.StatusSums("start")); got != "2025-06-15T00:00:00Z" {
		t.Errorf("start payload = %q", got)
	}
}

func TestPublishBatteries(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleBatteryRecord()
	published, err := publisher.PublishBatteries([]BatteryRecord{record})
	if err != nil {
		t.Fatalf("PublishBatteries() error = %v", err)
	}
	if published != 28+33 {
		t.Fatalf("published = %d, want 61 (28 scalars + 33 DCB fields)", published)
	}

	topics := broker.Topics()
	messages := broker.GetPublished()

	// Scalars publish first, DCB children after.
	if messages[0].Topic != topics.Battery(0, "time") {
		t.Errorf("first topic = %s, want battery time", messages[0].Topic)
	}
	if messages[27].Topic != topics.Battery(0, "usable_remaining_capacity") {
		t.Errorf("last scalar topic = %s, want usable_remaining_capacity", messages[27].Topic)
	}
	if messages[28].Topic != topics.DCB(0, 0, "current") {
		t.Errorf("first DCB topic = %s, want current", messages[28].Topic)
	}
	if messages[60].Topic != topics.DCB(0, 0, "warning") {
		t.Errorf("last DCB topic = %s, want warning", messages[60].Topic)
	}

	if got := broker.payloadFor(t, topics.Battery(0, "rsoc")); got != "72.46" {
		t.Errorf("rsoc payload = %q, want 72.46", got)
	}
	if got := broker.payloadFor(t, topics.DCB(0, 0, "voltages")); got != "[3.5,3.5]" {
		t.Errorf("voltages payload = %q, want [3.5,3.5]", got)
	}
}

func TestPublishBatteriesIndependentState(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	first := sampleBatteryRecord()
	second := sampleBatteryRecord()
	second.Index = 1
	second.DeviceName = "BAT_2"

	if _, err := publisher.PublishBatteries([]BatteryRecord{first, second}); err != nil {
		t.Fatalf("PublishBatteries() error = %v", err)
	}
	broker.ClearPublished()

	// Change one pack; the other must stay silent.
	changedSecond := sampleBatteryRecord()
	changedSecond.Index = 1
	changedSecond.DeviceName = "BAT_2"
	changedSecond.RSOC = 73.0

	published, err := publisher.PublishBatteries([]BatteryRecord{first, changedSecond})
	if err != nil {
		t.Fatalf("PublishBatteries() error = %v", err)
	}
	if published != 1 {
		t.Errorf("published = %d, want 1", published)
	}

	messages := broker.GetPublished()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	if want := broker.Topics().Battery(1, "rsoc"); messages[0].Topic != want {
		t.Errorf("topic = %s, want %s", messages[0].Topic, want)
	}
	if messages[0].Payload != "73" {
		t.Errorf("payload = %q, want 73", messages[0].Payload)
	}
}

func TestPublishBatteriesDCBChange(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	record := sampleBatteryRecord()
	if _, err := publisher.PublishBatteries([]BatteryRecord{record}); err != nil {
		t.Fatalf("PublishBatteries() error = %v", err)
	}
	broker.ClearPublished()

	changed := sampleBatteryRecord()
	changed.DCBs[0].Temperatures = []float64{27.5, 27.65}
	published, err := publisher.PublishBatteries([]BatteryRecord{changed})
	if err != nil {
		t.Fatalf("PublishBatteries() error = %v", err)
	}
	if published != 1 {
		t.Fatalf("published = %d, want only the changed cell temperatures", published)
	}
	if want := broker.Topics().DCB(0, 0, "temperatures"); broker.GetPublished()[0].Topic != want {
		t.Errorf("topic = %s, want %s", broker.GetPublished()[0].Topic, want)
	}
	if got := broker.GetPublished()[0].Payload; got != "[27.5,27.65]" {
		t.Errorf("payload = %q, want [27.5,27.65]", got)
	}
}

func TestPublishInfo(t *testing.T) {
	broker := newMockBroker()
	publisher := NewPublisher(broker)

	capacity := uint64(11700)
	record := NewSystemInfoRecord(&e3dc.SystemInfo{
		Timestamp:                testStamp,
		SerialNumber:             "S10E-720012345678",
		Model:                    "S10E",
		SoftwareRelease:          "S10_2023_086",
		IPAddress:                "192.168.1.50",
		MACAddress:               "00:11:22:33:44:55",
		InstalledPeakPower:       9600,
		InstalledBatteryCapacity: &capacity,
		DeratePercent:            70,
		DeratePower:              6720,
	})

	if err := publisher.PublishInfo(&record); err != nil {
		t.Fatalf("PublishInfo() error = %v", err)
	}

	messages := broker.GetPublished()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	if want := broker.Topics().Info(); messages[0].Topic != want {
		t.Errorf("topic = %s, want %s", messages[0].Topic, want)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(messages[0].Payload), &doc); err != nil {
		t.Fatalf("info payload is not valid JSON: %v", err)
	}
	if doc["model"] != "S10E" {
		t.Errorf("model = %v, want S10E", doc["model"])
	}
	if doc["serial"] != "S10E-720012345678" {
		t.Errorf("serial = %v", doc["serial"])
	}
	if doc["installed_battery_capacity"] != float64(11700) {
		t.Errorf("installed_battery_capacity = %v, want 11700", doc["installed_battery_capacity"])
	}
	if value, ok := doc["max_ac_power"]; !ok || value != nil {
		t.Errorf("max_ac_power = %v, want explicit null", value)
	}

	// Info is not diffed; republishing sends the document again.
	if err := publisher.PublishInfo(&record); err != nil {
		t.Fatalf("PublishInfo() repeat error = %v", err)
	}
	if n := len(broker.GetPublished()); n != 2 {
		t.Errorf("messages after repeat = %d, want 2", n)
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal floats", 1.5, 1.5, true},
		{"different floats", 1.5, 1.6, false},
		{"equal strings", "BAT_1", "BAT_1", true},
		{"equal bools", true, true, true},
		{"equal slices", []float64{1, 2}, []float64{1, 2}, true},
		{"different slice values", []float64{1, 2}, []float64{1, 3}, false},
		{"different slice lengths", []float64{1, 2}, []float64{1}, false},
		{"empty slices", []float64{}, []float64{}, true},
		{"nil and empty slice", []float64(nil), []float64{}, true},
		{"equal times", testStamp, testStamp, true},
		{"different times", testStamp, testStamp.Add(time.Second), false},
		{"same instant different zone", testStamp, testStamp.Local(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("valuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
