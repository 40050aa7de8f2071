package mqtt

import "fmt"

// Topics builds the bridge's MQTT topic hierarchy.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Every topic lives under "<root>/<deviceID>":
//
//	e3dc/S10E-720012345678/online
//	e3dc/S10E-720012345678/info
//	e3dc/S10E-720012345678/status/solar_production
//	e3dc/S10E-720012345678/status_sums/solar_production_today
//	e3dc/S10E-720012345678/status/battery:0/rsoc
//	e3dc/S10E-720012345678/status/battery:0/dcb:1/voltage
type Topics struct {
	Root     string
	DeviceID string
}

func (t Topics) base() string {
	return t.Root + "/" + t.DeviceID
}

// Online returns the retained availability topic.
//
// Example: e3dc/S10E-720012345678/online
func (t Topics) Online() string {
	return t.base() + "/online"
}

// Info returns the static device information topic.
//
// Example: e3dc/S10E-720012345678/info
func (t Topics) Info() string {
	return t.base() + "/info"
}

// Status returns the topic for a live status field.
//
// Example: e3dc/S10E-720012345678/status/solar_production
func (t Topics) Status(field string) string {
	return fmt.Sprintf("%s/status/%s", t.base(), field)
}

// StatusSums returns the topic for a daily statistics field.
//
// Example: e3dc/S10E-720012345678/status_sums/autarky_today
func (t Topics) StatusSums(field string) string {
	return fmt.Sprintf("%s/status_sums/%s", t.base(), field)
}

// Battery returns the topic for a battery pack field.
//
// Example: e3dc/S10E-720012345678/status/battery:0/rsoc
func (t Topics) Battery(index uint64, field string) string {
	return fmt.Sprintf("%s/status/battery:%d/%s", t.base(), index, field)
}

// DCB returns the topic for a battery module (DCB) field.
//
// Example: e3dc/S10E-720012345678/status/battery:0/dcb:1/voltage
func (t Topics) DCB(battery, dcb uint64, field string) string {
	return fmt.Sprintf("%s/status/battery:%d/dcb:%d/%s", t.base(), battery, dcb, field)
}
