package bridge

import (
	"math"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/e3dc"
)

// round rounds to the given number of decimals, half away from zero.
func round(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

// roundSlice rounds every element to the given number of decimals.
func roundSlice(values []float64, decimals int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = round(v, decimals)
	}
	return out
}

// splitValue splits a signed reading into positive and negative parts.
// Exactly one part is nonzero for nonzero input, and
// positive - negative == value. Used for bidirectional metrics where
// subscribers want separate import/export or charge/discharge topics.
func splitValue(value float64) (positive, negative float64) {
	if value >= 0 {
		return value, 0
	}
	return 0, math.Abs(value)
}

// field is one published value of a record: the topic leaf name and the
// value itself. Records expose their fields as ordered lists so one diff
// routine serves every record kind.
type field struct {
	name  string
	value any
}

// StatusRecord is the display form of a live status reading. Derived
// fields are computed here; raw watt values pass through unrounded while
// the two ratio fields are rounded to one decimal.
type StatusRecord struct {
	Time                  time.Time `json:"time"`
	Additional            float64   `json:"additional"`
	Autarky               float64   `json:"autarky"`
	BatteryCharge         float64   `json:"battery_charge"`
	BatteryDischarge      float64   `json:"battery_discharge"`
	BatteryConsumption    float64   `json:"battery_consumption"`
	ConsumptionFromGrid   float64   `json:"consumption_from_grid"`
	ExportToGrid          float64   `json:"export_to_grid"`
	GridProduction        float64   `json:"grid_production"`
	HouseConsumption      float64   `json:"house_consumption"`
	SelfConsumption       float64   `json:"self_consumption"`
	SolarProduction       float64   `json:"solar_production"`
	SolarProductionExcess float64   `json:"solar_production_excess"`
	StateOfCharge         float64   `json:"state_of_charge"`
	WBConsumption         float64   `json:"wb_consumption"`
}

// NewStatusRecord converts a raw status snapshot into its display form.
//
// Battery power splits into charge/discharge and grid power into
// import/export, so dashboards get unsigned series for each direction
// alongside the signed originals.
func NewStatusRecord(status *e3dc.Status) StatusRecord {
	batteryCharge, batteryDischarge := splitValue(status.PowerBattery)
	consumptionFromGrid, exportToGrid := splitValue(status.PowerGrid)

	return StatusRecord{
		Time:                  status.Timestamp,
		Additional:            -status.PowerAdd,
		Autarky:               round(status.Autarky, 1),
		BatteryCharge:         batteryCharge,
		BatteryDischarge:      batteryDischarge,
		BatteryConsumption:    status.PowerBattery,
		ConsumptionFromGrid:   consumptionFromGrid,
		ExportToGrid:          exportToGrid,
		GridProduction:        status.PowerGrid,
		HouseConsumption:      status.PowerHome,
		SelfConsumption:       round(status.SelfConsumption, 1),
		SolarProduction:       status.PowerPV,
		SolarProductionExcess: status.PowerPV - status.PowerHome,
		StateOfCharge:         status.BatterySOC,
		WBConsumption:         status.PowerWB,
	}
}

func (r *StatusRecord) fields() []field {
	return []field{
		{"time", r.Time},
		{"additional", r.Additional},
		{"autarky", r.Autarky},
		{"battery_charge", r.BatteryCharge},
		{"battery_discharge", r.BatteryDischarge},
		{"battery_consumption", r.BatteryConsumption},
		{"consumption_from_grid", r.ConsumptionFromGrid},
		{"export_to_grid", r.ExportToGrid},
		{"grid_production", r.GridProduction},
		{"house_consumption", r.HouseConsumption},
		{"self_consumption", r.SelfConsumption},
		{"solar_production", r.SolarProduction},
		{"solar_production_excess", r.SolarProductionExcess},
		{"state_of_charge", r.StateOfCharge},
		{"wb_consumption", r.WBConsumption},
	}
}

// SystemInfoRecord is the one-shot info document published as JSON on
// the info topic. Optional capacity fields render as null when the
// firmware spec list does not carry them.
type SystemInfoRecord struct {
	Time                          time.Time `json:"time"`
	DeratePercent                 float64   `json:"derate_percent"`
	DeratePower                   uint64    `json:"derate_power"`
	ExternalSourceAvailable       bool      `json:"external_source_available"`
	InstalledBatteryCapacity      *uint64   `json:"installed_battery_capacity"`
	InstalledPeakPower            uint64    `json:"installed_peak_power"`
	IPAddress                     string    `json:"ip_address"`
	MaxACPower                    *uint64   `json:"max_ac_power"`
	MACAddress                    string    `json:"mac_address"`
	MaxBatteryChargePower         *uint64   `json:"max_battery_charge_power"`
	MaxBatteryDischargePower      *uint64   `json:"max_battery_discharge_power"`
	Model                         string    `json:"model"`
	Release                       string    `json:"release"`
	Serial                        string    `json:"serial"`
	DischargeStartPower           uint64    `json:"discharge_start_power"`
	MaxChargePower                uint64    `json:"max_charge_power"`
	MaxDischargePower             uint64    `json:"max_discharge_power"`
	PowerLimitsUsed               bool      `json:"power_limits_used"`
	PowerSaveEnabled              bool      `json:"power_save_enabled"`
	WeatherForecastMode           uint64    `json:"weather_forecast_mode"`
	WeatherRegulatedChargeEnabled bool      `json:"weather_regulated_charge_enabled"`
}

// NewSystemInfoRecord converts a raw system info snapshot into the info
// document form.
func NewSystemInfoRecord(info *e3dc.SystemInfo) SystemInfoRecord {
	return SystemInfoRecord{
		Time:                          info.Timestamp,
		DeratePercent:                 round(info.DeratePercent, 2),
		DeratePower:                   info.DeratePower,
		ExternalSourceAvailable:       info.ExternalSourceAvailable,
		InstalledBatteryCapacity:      info.InstalledBatteryCapacity,
		InstalledPeakPower:            info.InstalledPeakPower,
		IPAddress:                     info.IPAddress,
		MaxACPower:                    info.MaxACPower,
		MACAddress:                    info.MACAddress,
		MaxBatteryChargePower:         info.MaxBatteryChargePower,
		MaxBatteryDischargePower:      info.MaxBatteryDischargePower,
		Model:                         info.Model,
		Release:                       info.SoftwareRelease,
		Serial:                        info.SerialNumber,
		DischargeStartPower:           info.DischargeStartPower,
		MaxChargePower:                info.MaxChargePower,
		MaxDischargePower:             info.MaxDischargePower,
		PowerLimitsUsed:               info.PowerLimitsUsed,
		PowerSaveEnabled:              info.PowerSaveEnabled,
		WeatherForecastMode:           info.WeatherForecastMode,
		WeatherRegulatedChargeEnabled: info.WeatherRegulatedChargeEnabled,
	}
}

// BatteryRecord is the display form of one pack reading. Voltages,
// currents, temperatures and capacities round to two decimals; counters
// and codes pass through as reported.
type BatteryRecord struct {
	Index uint64    `json:"index"`
	Time  time.Time `json:"time"`

	RSOC     float64 `json:"rsoc"`
	RSOCReal float64 `json:"rsoc_real"`
	ASOC     float64 `json:"asoc"`

	Current           float64 `json:"current"`
	ModuleVoltage     float64 `json:"module_voltage"`
	TerminalVoltage   float64 `json:"terminal_voltage"`
	MaxBatteryVoltage float64 `json:"max_battery_voltage"`
	EODVoltage        float64 `json:"eod_voltage"`

	FCC                     float64 `json:"fcc"`
	RC                      float64 `json:"rc"`
	DesignCapacity          float64 `json:"design_capacity"`
	UsableCapacity          float64 `json:"usable_capacity"`
	UsableRemainingCapacity float64 `json:"usable_remaining_capacity"`

	MaxChargeCurrent    float64 `json:"max_charge_current"`
	MaxDischargeCurrent float64 `json:"max_discharge_current"`

	MaxDCBCellTemp float64 `json:"max_dcb_cell_temp"`
	MinDCBCellTemp float64 `json:"min_dcb_cell_temp"`

	StatusCode float64 `json:"status_code"`
	ErrorCode  float64 `json:"error_code"`

	ChargeCycles       float64 `json:"charge_cycles"`
	TotalUseTime       uint64  `json:"total_use_time"`
	TotalDischargeTime uint64  `json:"total_discharge_time"`

	DeviceName string `json:"device_name"`

	DCBCount uint64      `json:"dcb_count"`
	DCBs     []DCBRecord `json:"dcbs"`

	ReadyForShutdown bool `json:"ready_for_shutdown"`
	TrainingMode     bool `json:"training_mode"`
}

// NewBatteryRecord converts a raw pack snapshot, including its DCB
// children, into display form.
func NewBatteryRecord(data *e3dc.BatteryData) BatteryRecord {
	dcbs := make([]DCBRecord, 0, len(data.DCBs))
	for i := range data.DCBs {
		dcbs = append(dcbs, NewDCBRecord(&data.DCBs[i]))
	}

	return BatteryRecord{
		Index: data.Index,
		Time:  data.Timestamp,

		RSOC:     round(data.RSOC, 2),
		RSOCReal: round(data.RSOCReal, 2),
		ASOC:     data.ASOC,

		Current:           round(data.Current, 2),
		ModuleVoltage:     round(data.ModuleVoltage, 2),
		TerminalVoltage:   round(data.TerminalVoltage, 2),
		MaxBatteryVoltage: round(data.MaxBatVoltage, 2),
		EODVoltage:        data.EODVoltage,

		FCC:                     data.FCC,
		RC:                      round(data.RC, 2),
		DesignCapacity:          data.DesignCapacity,
		UsableCapacity:          round(data.UsableCapacity, 2),
		UsableRemainingCapacity: round(data.UsableRemainingCapacity, 2),

		MaxChargeCurrent:    data.MaxChargeCurrent,
		MaxDischargeCurrent: data.MaxDischargeCurrent,

		MaxDCBCellTemp: round(data.MaxDCBCellTemp, 2),
		MinDCBCellTemp: round(data.MinDCBCellTemp, 2),

		StatusCode: data.StatusCode,
		ErrorCode:  data.ErrorCode,

		ChargeCycles:       data.ChargeCycles,
		TotalUseTime:       data.TotalUseTime,
		TotalDischargeTime: data.TotalDischargeTime,

		DeviceName: data.DeviceName,

		DCBCount: data.DCBCount,
		DCBs:     dcbs,

		ReadyForShutdown: data.ReadyForShutdown,
		TrainingMode:     data.TrainingMode,
	}
}

// fields returns the pack's scalar fields. DCB children publish under
// their own topic branch and are not part of this list.
func (r *BatteryRecord) fields() []field {
	return []field{
		{"time", r.Time},
		{"asoc", r.ASOC},
		{"charge_cycles", r.ChargeCycles},
		{"current", r.Current},
		{"dcb_count", r.DCBCount},
		{"design_capacity", r.DesignCapacity},
		{"device_name", r.DeviceName},
		{"eod_voltage", r.EODVoltage},
		{"error_code", r.ErrorCode},
		{"fcc", r.FCC},
		{"index", r.Index},
		{"max_battery_voltage", r.MaxBatteryVoltage},
		{"max_charge_current", r.MaxChargeCurrent},
		{"max_discharge_current", r.MaxDischargeCurrent},
		{"max_dcb_cell_temp", r.MaxDCBCellTemp},
		{"min_dcb_cell_temp", r.MinDCBCellTemp},
		{"module_voltage", r.ModuleVoltage},
		{"rc", r.RC},
		{"ready_for_shutdown", r.ReadyForShutdown},
		{"rsoc", r.RSOC},
		{"rsoc_real", r.RSOCReal},
		{"status_code", r.StatusCode},
		{"terminal_voltage", r.TerminalVoltage},
		{"total_use_time", r.TotalUseTime},
		{"total_discharge_time", r.TotalDischargeTime},
		{"training_mode", r.TrainingMode},
		{"usable_capacity", r.UsableCapacity},
		{"usable_remaining_capacity", r.UsableRemainingCapacity},
	}
}

// DCBRecord is the display form of one battery module (DCB) reading.
type DCBRecord struct {
	Index uint64 `json:"index"`

	Current       float64 `json:"current"`
	CurrentAvg30s float64 `json:"current_avg_30s"`
	Voltage       float64 `json:"voltage"`
	VoltageAvg30s float64 `json:"voltage_avg_30s"`

	SOC        float64 `json:"soc"`
	SOH        float64 `json:"soh"`
	CycleCount float64 `json:"cycle_count"`

	DesignCapacity     float64 `json:"design_capacity"`
	DesignVoltage      float64 `json:"design_voltage"`
	FullChargeCapacity float64 `json:"full_charge_capacity"`
	RemainingCapacity  float64 `json:"remaining_capacity"`

	MaxChargeVoltage     float64 `json:"max_charge_voltage"`
	MaxChargeCurrent     float64 `json:"max_charge_current"`
	MaxDischargeCurrent  float64 `json:"max_discharge_current"`
	EndOfDischarge       float64 `json:"end_of_discharge"`
	MaxChargeTemperature float64 `json:"max_charge_temperature"`
	MinChargeTemperature float64 `json:"min_charge_temperature"`

	DeviceName      string  `json:"device_name"`
	ManufactureName string  `json:"manufacture_name"`
	ManufactureDate float64 `json:"manufacture_date"`
	SerialCode      string  `json:"serial_code"`
	SerialNo        float64 `json:"serial_no"`

	FWVersion       float64 `json:"fw_version"`
	PCBVersion      float64 `json:"pcb_version"`
	ProtocolVersion float64 `json:"protocol_version"`

	Error   float64 `json:"error"`
	Warning float64 `json:"warning"`
	Status  float64 `json:"status"`

	SeriesCellCount   uint64 `json:"series_cell_count"`
	ParallelCellCount uint64 `json:"parallel_cell_count"`
	SensorCount       uint64 `json:"sensor_count"`

	Temperatures []float64 `json:"temperatures"`
	Voltages     []float64 `json:"voltages"`
}

// NewDCBRecord converts a raw module snapshot into display form.
func NewDCBRecord(data *e3dc.DCBData) DCBRecord {
	return DCBRecord{
		Index: data.Index,

		Current:       round(data.Current, 2),
		CurrentAvg30s: round(data.CurrentAvg30s, 2),
		Voltage:       round(data.Voltage, 2),
		VoltageAvg30s: round(data.VoltageAvg30s, 2),

		SOC:        round(data.SOC, 2),
		SOH:        data.SOH,
		CycleCount: data.CycleCount,

		DesignCapacity:     data.DesignCapacity,
		DesignVoltage:      round(data.DesignVoltage, 2),
		FullChargeCapacity: data.FullChargeCapacity,
		RemainingCapacity:  round(data.RemainingCapacity, 2),

		MaxChargeVoltage:     round(data.MaxChargeVoltage, 2),
		MaxChargeCurrent:     data.MaxChargeCurrent,
		MaxDischargeCurrent:  data.MaxDischargeCurrent,
		EndOfDischarge:       data.EndOfDischarge,
		MaxChargeTemperature: data.MaxChargeTemperature,
		MinChargeTemperature: data.MinChargeTemperature,

		DeviceName:      data.DeviceName,
		ManufactureName: data.ManufactureName,
		ManufactureDate: data.ManufactureDate,
		SerialCode:      data.SerialCode,
		SerialNo:        data.SerialNo,

		FWVersion:       data.FWVersion,
		PCBVersion:      data.PCBVersion,
		ProtocolVersion: data.ProtocolVersion,

		Error:   data.Error,
		Warning: data.Warning,
		Status:  data.Status,

		SeriesCellCount:   data.SeriesCellCount,
		ParallelCellCount: data.ParallelCellCount,
		SensorCount:       data.SensorCount,

		Temperatures: roundSlice(data.CellTemperatures, 2),
		Voltages:     roundSlice(data.CellVoltages, 2),
	}
}

func (r *DCBRecord) fields() []field {
	return []field{
		{"current", r.Current},
		{"current_avg_30s", r.CurrentAvg30s},
		{"cycle_count", r.CycleCount},
		{"design_capacity", r.DesignCapacity},
		{"design_voltage", r.DesignVoltage},
		{"device_name", r.DeviceName},
		{"end_of_discharge", r.EndOfDischarge},
		{"error", r.Error},
		{"full_charge_capacity", r.FullChargeCapacity},
		{"fw_version", r.FWVersion},
		{"manufacture_date", r.ManufactureDate},
		{"manufacture_name", r.ManufactureName},
		{"max_charge_current", r.MaxChargeCurrent},
		{"max_charge_temperature", r.MaxChargeTemperature},
		{"max_charge_voltage", r.MaxChargeVoltage},
		{"max_discharge_current", r.MaxDischargeCurrent},
		{"min_charge_temperature", r.MinChargeTemperature},
		{"parallel_cell_count", r.ParallelCellCount},
		{"sensor_count", r.SensorCount},
		{"series_cell_count", r.SeriesCellCount},
		{"pcb_version", r.PCBVersion},
		{"protocol_version", r.ProtocolVersion},
		{"remaining_capacity", r.RemainingCapacity},
		{"serial_no", r.SerialNo},
		{"serial_code", r.SerialCode},
		{"soc", r.SOC},
		{"soh", r.SOH},
		{"status", r.Status},
		{"temperatures", r.Temperatures},
		{"voltage", r.Voltage},
		{"voltage_avg_30s", r.VoltageAvg30s},
		{"voltages", r.Voltages},
		{"warning", r.Warning},
	}
}

// DailyRecord is the display form of one daily statistics reading,
// published under the status_sums branch. The three ratio fields round
// to one decimal; energy totals pass through as reported.
type DailyRecord struct {
	Time                     time.Time     `json:"time"`
	AutarkyToday             float64       `json:"autarky_today"`
	SelfConsumptionToday     float64       `json:"self_consumption_today"`
	SolarProductionToday     float64       `json:"solar_production_today"`
	HouseConsumptionToday    float64       `json:"house_consumption_today"`
	BatteryChargeToday       float64       `json:"battery_charge_today"`
	BatteryDischargeToday    float64       `json:"battery_discharge_today"`
	ExportToGridToday        float64       `json:"export_to_grid_today"`
	ConsumptionFromGridToday float64       `json:"consumption_from_grid_today"`
	StateOfChargeToday       float64       `json:"state_of_charge_today"`
	Start                    time.Time     `json:"start"`
	Timespan                 time.Duration `json:"timespan"`
}

// NewDailyRecord converts a raw daily statistics snapshot into display
// form.
func NewDailyRecord(stats *e3dc.DailyStatistics) DailyRecord {
	return DailyRecord{
		Time:                     stats.Timestamp,
		AutarkyToday:             round(stats.Autarky, 1),
		SelfConsumptionToday:     round(stats.ConsumedProduction, 1),
		SolarProductionToday:     stats.SolarProduction,
		HouseConsumptionToday:    stats.Consumption,
		BatteryChargeToday:       stats.BatPowerIn,
		BatteryDischargeToday:    stats.BatPowerOut,
		ExportToGridToday:        stats.GridPowerIn,
		ConsumptionFromGridToday: stats.GridPowerOut,
		StateOfChargeToday:       round(stats.StateOfCharge, 1),
		Start:                    stats.Start,
		Timespan:                 stats.Timespan,
	}
}

func (r *DailyRecord) fields() []field {
	return []field{
		{"time", r.Time},
		{"autarky_today", r.AutarkyToday},
		{"self_consumption_today", r.SelfConsumptionToday},
		{"solar_production_today", r.SolarProductionToday},
		{"house_consumption_today", r.HouseConsumptionToday},
		{"battery_charge_today", r.BatteryChargeToday},
		{"battery_discharge_today", r.BatteryDischargeToday},
		{"export_to_grid_today", r.ExportToGridToday},
		{"consumption_from_grid_today", r.ConsumptionFromGridToday},
		{"state_of_charge_today", r.StateOfChargeToday},
		{"start", r.Start},
		{"timespan", r.Timespan},
	}
}
