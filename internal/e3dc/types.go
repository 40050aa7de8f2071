package e3dc

import "time"

// BatteryInfo is the identity of one battery pack, discovered once at
// startup and reused for every later data query.
type BatteryInfo struct {
	Index              uint64 `json:"index"`
	DeviceName         string `json:"device_name"`
	ParamBatNumber     uint64 `json:"param_bat_number"`
	ManufacturerName   string `json:"manufacturer_name"`
	SerialNo           uint64 `json:"serialno"`
	InstanceDescriptor string `json:"instance_descriptor"`
	DCBCount           uint64 `json:"dcb_count"`
}

// SystemInfo combines the static installation constants read at startup
// with the power settings and firmware spec list read on every
// statistics poll. The four capacity fields are nil when the firmware
// spec list does not carry them.
type SystemInfo struct {
	Timestamp       time.Time `json:"time_stamp"`
	SerialNumber    string    `json:"serial_number"`
	MACAddress      string    `json:"mac_address"`
	IPAddress       string    `json:"ip_address"`
	Model           string    `json:"model"`
	SoftwareRelease string    `json:"software_release"`

	InstalledPeakPower       uint64  `json:"installed_peak_power"`
	InstalledBatteryCapacity *uint64 `json:"installed_battery_capacity"`
	MaxACPower               *uint64 `json:"max_ac_power"`
	MaxBatteryChargePower    *uint64 `json:"max_battery_charge_power"`
	MaxBatteryDischargePower *uint64 `json:"max_battery_discharge_power"`

	DeratePercent float64 `json:"derate_percent"`
	DeratePower   uint64  `json:"derate_power"`

	MaxChargePower                uint64 `json:"max_charge_power"`
	MaxDischargePower             uint64 `json:"max_discharge_power"`
	DischargeStartPower           uint64 `json:"discharge_start_power"`
	PowerLimitsUsed               bool   `json:"power_limits_used"`
	PowerSaveEnabled              bool   `json:"power_save_enabled"`
	WeatherForecastMode           uint64 `json:"weather_forecast_mode"`
	WeatherRegulatedChargeEnabled bool   `json:"weather_regulated_charge_enabled"`
	ExternalSourceAvailable       bool   `json:"external_source_available"`
}

// Status is one live power reading across the whole installation.
// Power values are watts as reported, sign conventions unchanged:
// positive battery power is charging, positive grid power is import.
type Status struct {
	Timestamp       time.Time `json:"time_stamp"`
	PowerBattery    float64   `json:"power_battery"`
	PowerWB         float64   `json:"power_wb"`
	PowerHome       float64   `json:"power_home"`
	PowerPV         float64   `json:"power_pv"`
	PowerGrid       float64   `json:"power_grid"`
	PowerAdd        float64   `json:"power_add"`
	BatterySOC      float64   `json:"battery_soc"`
	Autarky         float64   `json:"autarky"`
	SelfConsumption float64   `json:"self_consumption"`
}

// BatteryData is one full reading of a battery pack, including every
// DCB subunit. Identity fields repeat the discovery values so each
// snapshot is self-contained.
type BatteryData struct {
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"time_stamp"`

	RSOC     float64 `json:"rsoc"`
	RSOCReal float64 `json:"rsoc_real"`
	ASOC     float64 `json:"asoc"`

	Current         float64 `json:"current"`
	ModuleVoltage   float64 `json:"module_voltage"`
	TerminalVoltage float64 `json:"terminal_voltage"`
	MaxBatVoltage   float64 `json:"max_bat_voltage"`
	EODVoltage      float64 `json:"eod_voltage"`

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

	DeviceName         string `json:"device_name"`
	ParamBatNumber     uint64 `json:"param_bat_number"`
	ManufacturerName   string `json:"manufacturer_name"`
	SerialNo           uint64 `json:"serialno"`
	InstanceDescriptor string `json:"instance_descriptor"`

	DCBCount uint64    `json:"dcb_count"`
	DCBs     []DCBData `json:"dcbs"`

	ReadyForShutdown bool `json:"ready_for_shutdown"`
	TrainingMode     bool `json:"training_mode"`
}

// DCBData is one reading of a single DC battery controller, the
// cell-group subunit inside a pack. Firmware reports most numeric
// fields as floats even where integers would fit, and those widths are
// kept as received.
type DCBData struct {
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

	CellTemperatures []float64 `json:"cell_temperatures"`
	CellVoltages     []float64 `json:"cell_voltages"`
}

// DailyStatistics is the aggregated energy flow over one window of the
// device history database, usually [midnight, now).
type DailyStatistics struct {
	Timestamp          time.Time     `json:"time_stamp"`
	Autarky            float64       `json:"autarky"`
	Consumption        float64       `json:"consumption"`
	SolarProduction    float64       `json:"solar_production"`
	ConsumedProduction float64       `json:"consumed_production"`
	BatPowerIn         float64       `json:"bat_power_in"`
	BatPowerOut        float64       `json:"bat_power_out"`
	GridPowerIn        float64       `json:"grid_power_in"`
	GridPowerOut       float64       `json:"grid_power_out"`
	StateOfCharge      float64       `json:"state_of_charge"`
	Start              time.Time     `json:"start"`
	Timespan           time.Duration `json:"timespan"`
}
