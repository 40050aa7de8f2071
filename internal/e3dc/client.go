package e3dc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/rscp"
)

// minValidCellTemp separates real cell temperature readings from the
// zero placeholders firmware emits for unpopulated sensor slots. Used
// only when the pack does not report a sensor count.
const minValidCellTemp = 10.0

// fallbackStatsSpan is the history window reported right after
// midnight, when the current day is still shorter than one poll.
const fallbackStatsSpan = time.Hour

// Transport is the protocol session the client drives. *rscp.Client
// satisfies it; tests substitute an in-memory fake.
type Transport interface {
	Send(ctx context.Context, items []rscp.Item) (*rscp.Frame, error)
	Close() error
	IsConnected() bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// staticInfo holds the installation constants read once at startup.
type staticInfo struct {
	serialNumber       string
	model              string
	macAddress         string
	installedPeakPower uint64
	deratePercent      float64
	deratePower        uint64
	extSourceAvailable bool
}

// Client assembles typed telemetry records from raw protocol round
// trips. It owns the battery topology discovered at startup and the
// static system identity; both never change for the life of a session.
//
// Client is not safe for concurrent use. The polling loop drives it
// from a single goroutine.
type Client struct {
	transport Transport
	batteries []BatteryInfo
	info      staticInfo

	logger   Logger
	loggerMu sync.RWMutex
}

// New wraps an authenticated transport and performs the one-time
// startup sequence: battery discovery (one batched identity query plus
// one DCB count probe per pack) followed by the static system
// information read.
func New(ctx context.Context, transport Transport) (*Client, error) {
	if transport == nil {
		return nil, errors.New("e3dc: nil transport")
	}
	c := &Client{transport: transport}
	if err := c.discoverBatteries(ctx); err != nil {
		return nil, err
	}
	if err := c.loadStaticInfo(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// reader collects typed lookups against one response item list and
// latches the first failure, so record assembly stays a flat literal
// instead of a ladder of error checks.
type reader struct {
	items []rscp.Item
	err   error
}

func (r *reader) float(tag rscp.Tag) float64 {
	if r.err != nil {
		return 0
	}
	v, err := rscp.FindFloat64(r.items, tag)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *reader) uint(tag rscp.Tag) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := rscp.FindUint64(r.items, tag)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *reader) boolean(tag rscp.Tag) bool {
	if r.err != nil {
		return false
	}
	v, err := rscp.FindBool(r.items, tag)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *reader) text(tag rscp.Tag) string {
	if r.err != nil {
		return ""
	}
	v, err := rscp.FindString(r.items, tag)
	if err != nil {
		r.err = err
	}
	return v
}

// discoverBatteries queries all battery identities in one frame, then
// probes each pack once for its DCB count. The count probe is the only
// reliable source: the same field inside later data queries reads zero
// on observed firmware.
func (c *Client) discoverBatteries(ctx context.Context) error {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.EmptyItem(rscp.TagBatReqAvailableBatteries),
	})
	if err != nil {
		return fmt.Errorf("battery discovery: %w", err)
	}
	entries, err := rscp.Children(resp.Items, rscp.TagBatAvailableBatteries)
	if err != nil {
		return fmt.Errorf("battery discovery: %w", err)
	}

	batteries := make([]BatteryInfo, 0, len(entries))
	for _, entry := range entries {
		r := &reader{items: entry.Value.Items()}
		info := BatteryInfo{
			Index:              r.uint(rscp.TagBatIndex),
			ParamBatNumber:     r.uint(rscp.TagBatParamBatNumber),
			DeviceName:         r.text(rscp.TagBatDeviceName),
			ManufacturerName:   r.text(rscp.TagBatManufacturerName),
			SerialNo:           r.uint(rscp.TagBatSerialno),
			InstanceDescriptor: r.text(rscp.TagBatInstanceDescriptor),
		}
		if r.err != nil {
			return fmt.Errorf("battery discovery: %w", r.err)
		}

		count, err := c.probeDCBCount(ctx, info.Index)
		if err != nil {
			return err
		}
		info.DCBCount = count

		c.logInfo("battery discovered",
			"index", info.Index,
			"device_name", info.DeviceName,
			"dcb_count", info.DCBCount)
		batteries = append(batteries, info)
	}

	c.batteries = batteries
	return nil
}

// probeDCBCount asks one battery for its controller count.
func (c *Client) probeDCBCount(ctx context.Context, index uint64) (uint64, error) {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.NewItem(rscp.TagBatReqData, rscp.Container(
			rscp.NewItem(rscp.TagBatIndex, rscp.Int32(int32(index))),
			rscp.EmptyItem(rscp.TagBatReqDCBCount),
		)),
	})
	if err != nil {
		return 0, fmt.Errorf("battery %d dcb count: %w", index, err)
	}
	data, err := rscp.Children(resp.Items, rscp.TagBatData)
	if err != nil {
		return 0, fmt.Errorf("battery %d dcb count: %w", index, err)
	}
	count, err := rscp.FindUint64(data, rscp.TagBatDCBCount)
	if err != nil {
		return 0, fmt.Errorf("battery %d dcb count: %w", index, err)
	}
	return count, nil
}

// loadStaticInfo reads the installation constants that never change
// for the life of a session: identity, peak power and derating.
func (c *Client) loadStaticInfo(ctx context.Context) error {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.EmptyItem(rscp.TagEMSReqDerateAtPercentValue),
		rscp.EmptyItem(rscp.TagEMSReqDerateAtPowerValue),
		rscp.EmptyItem(rscp.TagEMSReqInstalledPeakPower),
		rscp.EmptyItem(rscp.TagEMSReqExtSrcAvailable),
		rscp.EmptyItem(rscp.TagInfoReqSerialNumber),
		rscp.EmptyItem(rscp.TagInfoReqMACAddress),
	})
	if err != nil {
		return fmt.Errorf("static info query: %w", err)
	}

	r := &reader{items: resp.Items}
	serial := stripSerial(r.text(rscp.TagInfoSerialNumber))
	c.info = staticInfo{
		serialNumber:       serial,
		model:              modelForSerial(serial),
		macAddress:         r.text(rscp.TagInfoMACAddress),
		installedPeakPower: r.uint(rscp.TagEMSInstalledPeakPower),
		deratePercent:      r.float(rscp.TagEMSDerateAtPercentValue),
		deratePower:        r.uint(rscp.TagEMSDerateAtPowerValue),
		extSourceAvailable: r.boolean(rscp.TagEMSExtSrcAvailable),
	}
	if r.err != nil {
		return fmt.Errorf("static info query: %w", r.err)
	}

	c.logInfo("device identified",
		"model", c.info.model,
		"serial_number", c.info.serialNumber)
	return nil
}

// stripSerial drops the first four characters of the factory serial;
// the remainder starts with the model prefix. Short serials pass
// through unchanged.
func stripSerial(serial string) string {
	r := []rune(serial)
	if len(r) > 4 {
		return string(r[4:])
	}
	return serial
}

// modelForSerial maps the stripped serial prefix to the marketing
// model name.
func modelForSerial(serial string) string {
	switch {
	case strings.HasPrefix(serial, "4"), strings.HasPrefix(serial, "72"):
		return "S10E"
	case strings.HasPrefix(serial, "74"):
		return "S10E_Compact"
	case strings.HasPrefix(serial, "5"):
		return "S10_Mini"
	case strings.HasPrefix(serial, "6"):
		return "Quattroporte"
	case strings.HasPrefix(serial, "70"):
		return "S10E_Pro"
	case strings.HasPrefix(serial, "75"):
		return "S10E_Pro_Compact"
	case strings.HasPrefix(serial, "8"):
		return "S10X"
	default:
		return "N/A"
	}
}

// Batteries returns the packs discovered at startup.
func (c *Client) Batteries() []BatteryInfo {
	return append([]BatteryInfo(nil), c.batteries...)
}

// Model returns the marketing model name derived from the serial.
func (c *Client) Model() string { return c.info.model }

// SerialNumber returns the stripped device serial.
func (c *Client) SerialNumber() string { return c.info.serialNumber }

// DeviceID returns the stable identity used in topic paths, formed
// from model and serial.
func (c *Client) DeviceID() string {
	return c.info.model + "-" + c.info.serialNumber
}

// GetStatus reads the live power flows in one round trip.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.EmptyItem(rscp.TagEMSReqPowerPV),
		rscp.EmptyItem(rscp.TagEMSReqPowerBat),
		rscp.EmptyItem(rscp.TagEMSReqPowerGrid),
		rscp.EmptyItem(rscp.TagEMSReqPowerHome),
		rscp.EmptyItem(rscp.TagEMSReqBatSOC),
		rscp.EmptyItem(rscp.TagEMSReqAutarky),
		rscp.EmptyItem(rscp.TagEMSReqSelfConsumption),
		rscp.EmptyItem(rscp.TagEMSReqPowerWBAll),
		rscp.EmptyItem(rscp.TagEMSReqPowerAdd),
	})
	if err != nil {
		return nil, fmt.Errorf("status query: %w", err)
	}

	r := &reader{items: resp.Items}
	status := &Status{
		Timestamp:       resp.Timestamp,
		PowerAdd:        r.float(rscp.TagEMSPowerAdd),
		PowerPV:         r.float(rscp.TagEMSPowerPV),
		PowerBattery:    r.float(rscp.TagEMSPowerBat),
		PowerGrid:       r.float(rscp.TagEMSPowerGrid),
		PowerHome:       r.float(rscp.TagEMSPowerHome),
		PowerWB:         r.float(rscp.TagEMSPowerWBAll),
		BatterySOC:      r.float(rscp.TagEMSBatSOC),
		Autarky:         r.float(rscp.TagEMSAutarky),
		SelfConsumption: r.float(rscp.TagEMSSelfConsumption),
	}
	if r.err != nil {
		return nil, fmt.Errorf("status query: %w", r.err)
	}
	return status, nil
}

// GetSystemInfo reads the power settings and firmware spec list and
// merges them with the startup constants into one record.
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.EmptyItem(rscp.TagInfoReqSWRelease),
		rscp.EmptyItem(rscp.TagInfoReqIPAddress),
		rscp.EmptyItem(rscp.TagEMSReqGetPowerSettings),
		rscp.EmptyItem(rscp.TagEMSReqGetSysSpecs),
	})
	if err != nil {
		return nil, fmt.Errorf("system info query: %w", err)
	}

	settings, err := rscp.Children(resp.Items, rscp.TagEMSGetPowerSettings)
	if err != nil {
		return nil, fmt.Errorf("system info query: %w", err)
	}
	specs, err := rscp.Children(resp.Items, rscp.TagEMSGetSysSpecs)
	if err != nil {
		return nil, fmt.Errorf("system info query: %w", err)
	}
	specValues := parseSysSpecs(specs)

	top := &reader{items: resp.Items}
	st := &reader{items: settings}
	info := &SystemInfo{
		Timestamp:       resp.Timestamp,
		SerialNumber:    c.info.serialNumber,
		Model:           c.info.model,
		MACAddress:      c.info.macAddress,
		IPAddress:       top.text(rscp.TagInfoIPAddress),
		SoftwareRelease: top.text(rscp.TagInfoSWRelease),

		InstalledPeakPower:       c.info.installedPeakPower,
		InstalledBatteryCapacity: specValue(specValues, "installedBatteryCapacity"),
		MaxACPower:               specValue(specValues, "maxAcPower"),
		MaxBatteryChargePower:    specValue(specValues, "maxBatChargePower"),
		// The discharge key is spelled that way in device firmware.
		MaxBatteryDischargePower: specValue(specValues, "maxBatDischargPower"),

		DeratePercent: c.info.deratePercent,
		DeratePower:   c.info.deratePower,

		MaxChargePower:                st.uint(rscp.TagEMSMaxChargePower),
		MaxDischargePower:             st.uint(rscp.TagEMSMaxDischargePower),
		DischargeStartPower:           st.uint(rscp.TagEMSDischargeStartPower),
		PowerLimitsUsed:               st.boolean(rscp.TagEMSPowerLimitsUsed),
		PowerSaveEnabled:              st.boolean(rscp.TagEMSPowersaveEnabled),
		WeatherForecastMode:           st.uint(rscp.TagEMSWeatherForecastMode),
		WeatherRegulatedChargeEnabled: st.boolean(rscp.TagEMSWeatherRegulatedChargeEnabled),
		ExternalSourceAvailable:       c.info.extSourceAvailable,
	}
	if top.err != nil {
		return nil, fmt.Errorf("system info query: %w", top.err)
	}
	if st.err != nil {
		return nil, fmt.Errorf("system info query: %w", st.err)
	}
	return info, nil
}

// parseSysSpecs flattens the firmware spec list into a name to value
// map. Entries without a name or without an integer value are skipped;
// the list mixes integer and string specs and only the integer ones
// are consumed here.
func parseSysSpecs(specs []rscp.Item) map[string]uint64 {
	values := make(map[string]uint64)
	for _, item := range specs {
		if item.Tag != rscp.TagEMSSysSpec {
			continue
		}
		entry := item.Value.Items()
		name, err := rscp.FindString(entry, rscp.TagEMSSysSpecName)
		if err != nil {
			continue
		}
		value, err := rscp.FindUint64(entry, rscp.TagEMSSysSpecValueInt)
		if err != nil {
			continue
		}
		values[name] = value
	}
	return values
}

// specValue looks up one optional firmware spec entry.
func specValue(specs map[string]uint64, key string) *uint64 {
	if v, ok := specs[key]; ok {
		return &v
	}
	return nil
}

// GetBatteryData reads one full pack snapshot: all module scalars in
// one round trip, then one round trip per DCB. Identity fields come
// from the discovery cache, as does the DCB count.
func (c *Client) GetBatteryData(ctx context.Context, battery BatteryInfo) (*BatteryData, error) {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.NewItem(rscp.TagBatReqData, rscp.Container(
			rscp.NewItem(rscp.TagBatIndex, rscp.UInt64(battery.Index)),
			rscp.EmptyItem(rscp.TagBatReqRSOC),
			rscp.EmptyItem(rscp.TagBatReqRSOCReal),
			rscp.EmptyItem(rscp.TagBatReqASOC),
			rscp.EmptyItem(rscp.TagBatReqCurrent),
			rscp.EmptyItem(rscp.TagBatReqModuleVoltage),
			rscp.EmptyItem(rscp.TagBatReqTerminalVoltage),
			rscp.EmptyItem(rscp.TagBatReqMaxBatVoltage),
			rscp.EmptyItem(rscp.TagBatReqEODVoltage),
			rscp.EmptyItem(rscp.TagBatReqFCC),
			rscp.EmptyItem(rscp.TagBatReqRC),
			rscp.EmptyItem(rscp.TagBatReqDesignCapacity),
			rscp.EmptyItem(rscp.TagBatReqUsableCapacity),
			rscp.EmptyItem(rscp.TagBatReqUsableRemainingCapacity),
			rscp.EmptyItem(rscp.TagBatReqMaxChargeCurrent),
			rscp.EmptyItem(rscp.TagBatReqMaxDischargeCurrent),
			rscp.EmptyItem(rscp.TagBatReqMaxDCBCellTemperature),
			rscp.EmptyItem(rscp.TagBatReqMinDCBCellTemperature),
			rscp.EmptyItem(rscp.TagBatReqStatusCode),
			rscp.EmptyItem(rscp.TagBatReqErrorCode),
			rscp.EmptyItem(rscp.TagBatReqChargeCycles),
			rscp.EmptyItem(rscp.TagBatReqTotalUseTime),
			rscp.EmptyItem(rscp.TagBatReqTotalDischargeTime),
			rscp.EmptyItem(rscp.TagBatReqDCBCount),
			rscp.EmptyItem(rscp.TagBatReqReadyForShutdown),
			rscp.EmptyItem(rscp.TagBatReqTrainingMode),
		)),
	})
	if err != nil {
		return nil, fmt.Errorf("battery %d data: %w", battery.Index, err)
	}
	data, err := rscp.Children(resp.Items, rscp.TagBatData)
	if err != nil {
		return nil, fmt.Errorf("battery %d data: %w", battery.Index, err)
	}

	r := &reader{items: data}
	bd := &BatteryData{
		Index:     battery.Index,
		Timestamp: resp.Timestamp,

		RSOC:     r.float(rscp.TagBatRSOC),
		RSOCReal: r.float(rscp.TagBatRSOCReal),
		ASOC:     r.float(rscp.TagBatASOC),

		Current:         r.float(rscp.TagBatCurrent),
		ModuleVoltage:   r.float(rscp.TagBatModuleVoltage),
		TerminalVoltage: r.float(rscp.TagBatTerminalVoltage),
		MaxBatVoltage:   r.float(rscp.TagBatMaxBatVoltage),
		EODVoltage:      r.float(rscp.TagBatEODVoltage),

		FCC:                     r.float(rscp.TagBatFCC),
		RC:                      r.float(rscp.TagBatRC),
		DesignCapacity:          r.float(rscp.TagBatDesignCapacity),
		UsableCapacity:          r.float(rscp.TagBatUsableCapacity),
		UsableRemainingCapacity: r.float(rscp.TagBatUsableRemainingCapacity),

		MaxChargeCurrent:    r.float(rscp.TagBatMaxChargeCurrent),
		MaxDischargeCurrent: r.float(rscp.TagBatMaxDischargeCurrent),

		MaxDCBCellTemp: r.float(rscp.TagBatMaxDCBCellTemperature),
		MinDCBCellTemp: r.float(rscp.TagBatMinDCBCellTemperature),

		StatusCode: r.float(rscp.TagBatStatusCode),
		ErrorCode:  r.float(rscp.TagBatErrorCode),

		ChargeCycles:       r.float(rscp.TagBatChargeCycles),
		TotalUseTime:       r.uint(rscp.TagBatTotalUseTime),
		TotalDischargeTime: r.uint(rscp.TagBatTotalDischargeTime),

		DeviceName:         battery.DeviceName,
		ParamBatNumber:     battery.ParamBatNumber,
		ManufacturerName:   battery.ManufacturerName,
		SerialNo:           battery.SerialNo,
		InstanceDescriptor: battery.InstanceDescriptor,

		// The count echoed in this response reads zero on observed
		// firmware; the discovery probe is authoritative.
		DCBCount: battery.DCBCount,

		ReadyForShutdown: r.boolean(rscp.TagBatReadyForShutdown),
		TrainingMode:     r.boolean(rscp.TagBatTrainingMode),
	}
	if r.err != nil {
		return nil, fmt.Errorf("battery %d data: %w", battery.Index, r.err)
	}

	bd.DCBs = make([]DCBData, 0, battery.DCBCount)
	for dcb := uint64(0); dcb < battery.DCBCount; dcb++ {
		d, err := c.GetDCBData(ctx, battery.Index, dcb)
		if err != nil {
			return nil, err
		}
		bd.DCBs = append(bd.DCBs, *d)
	}
	return bd, nil
}

// GetDCBData reads one controller snapshot: info block plus the raw
// cell temperature and voltage buffers, reconciled against the
// reported sensor and series cell counts.
func (c *Client) GetDCBData(ctx context.Context, batteryIndex, dcbIndex uint64) (*DCBData, error) {
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.NewItem(rscp.TagBatReqData, rscp.Container(
			rscp.NewItem(rscp.TagBatIndex, rscp.UInt16(uint16(batteryIndex))),
			// These three carry the DCB index as their payload.
			rscp.NewItem(rscp.TagBatReqDCBAllCellTemperatures, rscp.UInt64(dcbIndex)),
			rscp.NewItem(rscp.TagBatReqDCBAllCellVoltages, rscp.UInt64(dcbIndex)),
			rscp.NewItem(rscp.TagBatReqDCBInfo, rscp.UInt64(dcbIndex)),
		)),
	})
	if err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, err)
	}
	data, err := rscp.Children(resp.Items, rscp.TagBatData)
	if err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, err)
	}
	info, err := rscp.Children(data, rscp.TagBatDCBInfo)
	if err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, err)
	}

	r := &reader{items: info}
	sensorCount := r.uint(rscp.TagBatDCBNrSensor)
	seriesCellCount := r.uint(rscp.TagBatDCBNrSeriesCell)
	parallelCellCount := r.uint(rscp.TagBatDCBNrParallelCell)
	if r.err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, r.err)
	}

	allTemps, err := extractCellValues(data, rscp.TagBatDCBAllCellTemperatures, rscp.TagBatDCBCellTemperature)
	if err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, err)
	}
	var cellTemps []float64
	if sensorCount > 0 {
		cellTemps = takeLeading(allTemps, sensorCount)
	} else {
		cellTemps = make([]float64, 0, len(allTemps))
		for _, t := range allTemps {
			if t >= minValidCellTemp {
				cellTemps = append(cellTemps, t)
			}
		}
	}

	allVolts, err := extractCellValues(data, rscp.TagBatDCBAllCellVoltages, rscp.TagBatDCBCellVoltage)
	if err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, err)
	}
	cellVolts := allVolts
	if seriesCellCount > 0 {
		cellVolts = takeLeading(allVolts, seriesCellCount)
	}
	// A zero series count falls back to the observed voltage list
	// length. The parallel count has no such fallback; firmware zero
	// is published as is.
	if seriesCellCount == 0 {
		seriesCellCount = uint64(len(cellVolts))
	}

	d := &DCBData{
		Index: dcbIndex,

		Current:       r.float(rscp.TagBatDCBCurrent),
		CurrentAvg30s: r.float(rscp.TagBatDCBCurrentAvg30s),
		Voltage:       r.float(rscp.TagBatDCBVoltage),
		VoltageAvg30s: r.float(rscp.TagBatDCBVoltageAvg30s),

		SOC:        r.float(rscp.TagBatDCBSOC),
		SOH:        r.float(rscp.TagBatDCBSOH),
		CycleCount: r.float(rscp.TagBatDCBCycleCount),

		DesignCapacity:     r.float(rscp.TagBatDCBDesignCapacity),
		DesignVoltage:      r.float(rscp.TagBatDCBDesignVoltage),
		FullChargeCapacity: r.float(rscp.TagBatDCBFullChargeCapacity),
		RemainingCapacity:  r.float(rscp.TagBatDCBRemainingCapacity),

		MaxChargeVoltage:     r.float(rscp.TagBatDCBMaxChargeVoltage),
		MaxChargeCurrent:     r.float(rscp.TagBatDCBMaxChargeCurrent),
		MaxDischargeCurrent:  r.float(rscp.TagBatDCBMaxDischargeCurrent),
		EndOfDischarge:       r.float(rscp.TagBatDCBEndOfDischarge),
		MaxChargeTemperature: r.float(rscp.TagBatDCBChargeHighTemperature),
		MinChargeTemperature: r.float(rscp.TagBatDCBChargeLowTemperature),

		DeviceName:      r.text(rscp.TagBatDCBDeviceName),
		ManufactureName: r.text(rscp.TagBatDCBManufactureName),
		ManufactureDate: r.float(rscp.TagBatDCBManufactureDate),
		SerialCode:      r.text(rscp.TagBatDCBSerialCode),
		SerialNo:        r.float(rscp.TagBatDCBSerialNo),

		FWVersion:       r.float(rscp.TagBatDCBFWVersion),
		PCBVersion:      r.float(rscp.TagBatDCBPCBVersion),
		ProtocolVersion: r.float(rscp.TagBatDCBProtocolVersion),

		Error:   r.float(rscp.TagBatDCBError),
		Warning: r.float(rscp.TagBatDCBWarning),
		Status:  r.float(rscp.TagBatDCBStatus),

		SeriesCellCount:   seriesCellCount,
		ParallelCellCount: parallelCellCount,
		SensorCount:       sensorCount,

		CellTemperatures: cellTemps,
		CellVoltages:     cellVolts,
	}
	if r.err != nil {
		return nil, fmt.Errorf("battery %d dcb %d: %w", batteryIndex, dcbIndex, r.err)
	}
	return d, nil
}

// extractCellValues digs per-cell readings out of their double
// wrapping: the all-cells response holds a nested data container whose
// children are the repeated cell items.
func extractCellValues(parent []rscp.Item, listTag, cellTag rscp.Tag) ([]float64, error) {
	wrapper, err := rscp.Children(parent, listTag)
	if err != nil {
		return nil, err
	}
	cells, err := rscp.Children(wrapper, rscp.TagBatData)
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, item := range cells {
		if item.Tag != cellTag {
			continue
		}
		v, err := item.Value.AsFloat64()
		if err != nil {
			return nil, fmt.Errorf("cell value %s: %w", item.Tag, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// takeLeading keeps the first n values, tolerating buffers shorter
// than the reported count.
func takeLeading(values []float64, n uint64) []float64 {
	if n < uint64(len(values)) {
		return values[:n]
	}
	return values
}

// GetDailyStatistics reads the aggregated energy flow for the current
// day. Right after midnight, when less than one statInterval of the
// day has elapsed, the previous day's final hour is reported instead
// of a near-empty window.
func (c *Client) GetDailyStatistics(ctx context.Context, statInterval time.Duration) (*DailyStatistics, error) {
	start, span := dailyWindow(time.Now(), statInterval)
	return c.GetHistoryData(ctx, start, span)
}

// dailyWindow picks the aggregation window for one statistics poll.
func dailyWindow(now time.Time, statInterval time.Duration) (time.Time, time.Duration) {
	now = now.UTC()
	midnight := now.Truncate(24 * time.Hour)
	elapsed := now.Sub(midnight)
	if elapsed < statInterval {
		return midnight.Add(-fallbackStatsSpan), fallbackStatsSpan
	}
	return midnight, elapsed
}

// GetHistoryData reads the aggregated energy sums for an arbitrary
// window of the device history database.
func (c *Client) GetHistoryData(ctx context.Context, start time.Time, span time.Duration) (*DailyStatistics, error) {
	seconds := int64(span / time.Second)
	resp, err := c.transport.Send(ctx, []rscp.Item{
		rscp.NewItem(rscp.TagDBReqHistoryDataDay, rscp.Container(
			rscp.NewItem(rscp.TagDBHistoryTimeStart, rscp.UInt64(uint64(start.Unix()))),
			rscp.NewItem(rscp.TagDBHistoryTimeInterval, rscp.Int64(seconds)),
			rscp.NewItem(rscp.TagDBHistoryTimeSpan, rscp.Int64(seconds)),
		)),
	})
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}

	day, err := rscp.Children(resp.Items, rscp.TagDBHistoryDataDay)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	sums, err := rscp.Children(day, rscp.TagDBSumContainer)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}

	r := &reader{items: sums}
	stats := &DailyStatistics{
		Timestamp:          resp.Timestamp,
		Autarky:            r.float(rscp.TagDBAutarky),
		ConsumedProduction: r.float(rscp.TagDBConsumedProduction),
		SolarProduction:    r.float(rscp.TagDBDCPower),
		Consumption:        r.float(rscp.TagDBConsumption),
		BatPowerIn:         r.float(rscp.TagDBBatPowerIn),
		BatPowerOut:        r.float(rscp.TagDBBatPowerOut),
		GridPowerIn:        r.float(rscp.TagDBGridPowerIn),
		GridPowerOut:       r.float(rscp.TagDBGridPowerOut),
		StateOfCharge:      r.float(rscp.TagDBBatChargeLevel),
		Start:              start,
		Timespan:           span,
	}
	if r.err != nil {
		return nil, fmt.Errorf("history query: %w", r.err)
	}
	return stats, nil
}

// Close tears down the protocol session.
func (c *Client) Close() error {
	c.logInfo("device session closing")
	return c.transport.Close()
}

// IsConnected reports whether the underlying session is usable.
func (c *Client) IsConnected() bool { return c.transport.IsConnected() }

// SetLogger sets a logger for lifecycle logging.
// Pass nil to disable logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}
