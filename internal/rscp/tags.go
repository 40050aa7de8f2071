package rscp

import "fmt"

// Tag identifies one field or container in the device protocol.
//
// The upper byte selects a namespace (0x00 system, 0x01 energy
// management, 0x03 battery, 0x06 history database, 0x0A device info).
// The device answers a request tag with its response twin, which is
// the request tag with the response bit set. Identity tags such as
// TagBatIndex are echoed verbatim inside response containers.
//
// The constants below are the subset of the vendor registry this
// bridge uses.
type Tag uint32

// tagResponseBit distinguishes response tags from request tags.
const tagResponseBit Tag = 0x00800000

// String formats the tag the way the vendor documentation writes them.
func (t Tag) String() string {
	return fmt.Sprintf("0x%08X", uint32(t))
}

// Response returns the response twin of a request tag.
func (t Tag) Response() Tag { return t | tagResponseBit }

// System namespace: authentication handshake.
const (
	TagRSCPReqAuthentication      Tag = 0x00000001
	TagRSCPAuthenticationUser     Tag = 0x00000002
	TagRSCPAuthenticationPassword Tag = 0x00000003
	TagRSCPAuthentication         Tag = 0x00800001
)

// Energy management namespace: live power readings.
const (
	TagEMSReqPowerPV         Tag = 0x01000001
	TagEMSReqPowerBat        Tag = 0x01000002
	TagEMSReqPowerHome       Tag = 0x01000003
	TagEMSReqPowerGrid       Tag = 0x01000004
	TagEMSReqPowerAdd        Tag = 0x01000005
	TagEMSReqAutarky         Tag = 0x01000006
	TagEMSReqSelfConsumption Tag = 0x01000007
	TagEMSReqBatSOC          Tag = 0x01000008
	TagEMSReqPowerWBAll      Tag = 0x01000016

	TagEMSPowerPV         Tag = 0x01800001
	TagEMSPowerBat        Tag = 0x01800002
	TagEMSPowerHome       Tag = 0x01800003
	TagEMSPowerGrid       Tag = 0x01800004
	TagEMSPowerAdd        Tag = 0x01800005
	TagEMSAutarky         Tag = 0x01800006
	TagEMSSelfConsumption Tag = 0x01800007
	TagEMSBatSOC          Tag = 0x01800008
	TagEMSPowerWBAll      Tag = 0x01800016
)

// Energy management namespace: installation constants.
const (
	TagEMSReqInstalledPeakPower   Tag = 0x0100000D
	TagEMSReqDerateAtPercentValue Tag = 0x0100000E
	TagEMSReqDerateAtPowerValue   Tag = 0x0100000F
	TagEMSReqExtSrcAvailable      Tag = 0x0100001C

	TagEMSInstalledPeakPower   Tag = 0x0180000D
	TagEMSDerateAtPercentValue Tag = 0x0180000E
	TagEMSDerateAtPowerValue   Tag = 0x0180000F
	TagEMSExtSrcAvailable      Tag = 0x0180001C
)

// Energy management namespace: power settings container and children.
const (
	TagEMSReqGetPowerSettings Tag = 0x01000071

	TagEMSGetPowerSettings              Tag = 0x01800071
	TagEMSPowerLimitsUsed               Tag = 0x01800072
	TagEMSMaxChargePower                Tag = 0x01800073
	TagEMSMaxDischargePower             Tag = 0x01800074
	TagEMSDischargeStartPower           Tag = 0x01800075
	TagEMSPowersaveEnabled              Tag = 0x01800076
	TagEMSWeatherRegulatedChargeEnabled Tag = 0x01800077
	TagEMSWeatherForecastMode           Tag = 0x01800078
)

// Energy management namespace: system spec list. Each spec entry is a
// container of name plus integer or string value.
const (
	TagEMSReqGetSysSpecs Tag = 0x01000080

	TagEMSGetSysSpecs     Tag = 0x01800080
	TagEMSSysSpec         Tag = 0x01800081
	TagEMSSysSpecIndex    Tag = 0x01800082
	TagEMSSysSpecName     Tag = 0x01800083
	TagEMSSysSpecValueInt Tag = 0x01800084
	TagEMSSysSpecValueStr Tag = 0x01800085
)

// Battery namespace: query envelope and discovery.
const (
	TagBatReqData Tag = 0x03040000
	TagBatData    Tag = 0x03840000
	TagBatIndex   Tag = 0x03040001

	TagBatReqAvailableBatteries Tag = 0x03000030
	TagBatAvailableBatteries    Tag = 0x03800030

	TagBatParamBatNumber     Tag = 0x03800031
	TagBatManufacturerName   Tag = 0x03800032
	TagBatSerialno           Tag = 0x03800033
	TagBatInstanceDescriptor Tag = 0x03800034
)

// Battery namespace: per-module scalar readings.
const (
	TagBatReqRSOC                    Tag = 0x03000001
	TagBatReqModuleVoltage           Tag = 0x03000002
	TagBatReqCurrent                 Tag = 0x03000003
	TagBatReqMaxBatVoltage           Tag = 0x03000004
	TagBatReqMaxChargeCurrent        Tag = 0x03000005
	TagBatReqEODVoltage              Tag = 0x03000006
	TagBatReqMaxDischargeCurrent     Tag = 0x03000007
	TagBatReqChargeCycles            Tag = 0x03000008
	TagBatReqTerminalVoltage         Tag = 0x03000009
	TagBatReqStatusCode              Tag = 0x0300000A
	TagBatReqErrorCode               Tag = 0x0300000B
	TagBatReqDeviceName              Tag = 0x0300000C
	TagBatReqDCBCount                Tag = 0x0300000D
	TagBatReqMaxDCBCellTemperature   Tag = 0x0300000E
	TagBatReqMinDCBCellTemperature   Tag = 0x0300000F
	TagBatReqReadyForShutdown        Tag = 0x03000010
	TagBatReqTrainingMode            Tag = 0x03000011
	TagBatReqFCC                     Tag = 0x03000012
	TagBatReqRC                      Tag = 0x03000013
	TagBatReqASOC                    Tag = 0x03000014
	TagBatReqRSOCReal                Tag = 0x03000015
	TagBatReqDesignCapacity          Tag = 0x03000016
	TagBatReqUsableCapacity          Tag = 0x03000017
	TagBatReqUsableRemainingCapacity Tag = 0x03000018
	TagBatReqTotalUseTime            Tag = 0x03000019
	TagBatReqTotalDischargeTime      Tag = 0x0300001A

	TagBatRSOC                    Tag = 0x03800001
	TagBatModuleVoltage           Tag = 0x03800002
	TagBatCurrent                 Tag = 0x03800003
	TagBatMaxBatVoltage           Tag = 0x03800004
	TagBatMaxChargeCurrent        Tag = 0x03800005
	TagBatEODVoltage              Tag = 0x03800006
	TagBatMaxDischargeCurrent     Tag = 0x03800007
	TagBatChargeCycles            Tag = 0x03800008
	TagBatTerminalVoltage         Tag = 0x03800009
	TagBatStatusCode              Tag = 0x0380000A
	TagBatErrorCode               Tag = 0x0380000B
	TagBatDeviceName              Tag = 0x0380000C
	TagBatDCBCount                Tag = 0x0380000D
	TagBatMaxDCBCellTemperature   Tag = 0x0380000E
	TagBatMinDCBCellTemperature   Tag = 0x0380000F
	TagBatReadyForShutdown        Tag = 0x03800010
	TagBatTrainingMode            Tag = 0x03800011
	TagBatFCC                     Tag = 0x03800012
	TagBatRC                      Tag = 0x03800013
	TagBatASOC                    Tag = 0x03800014
	TagBatRSOCReal                Tag = 0x03800015
	TagBatDesignCapacity          Tag = 0x03800016
	TagBatUsableCapacity          Tag = 0x03800017
	TagBatUsableRemainingCapacity Tag = 0x03800018
	TagBatTotalUseTime            Tag = 0x03800019
	TagBatTotalDischargeTime      Tag = 0x0380001A
)

// Battery namespace: DC battery controller (DCB) queries. The cell
// list and info requests carry the DCB index as their payload.
const (
	TagBatReqDCBAllCellTemperatures Tag = 0x03000045
	TagBatReqDCBAllCellVoltages     Tag = 0x03000046
	TagBatReqDCBInfo                Tag = 0x03000047

	TagBatDCBAllCellTemperatures Tag = 0x03800045
	TagBatDCBAllCellVoltages     Tag = 0x03800046
	TagBatDCBInfo                Tag = 0x03800047
	TagBatDCBCellTemperature     Tag = 0x03800048
	TagBatDCBCellVoltage         Tag = 0x03800049
)

// Battery namespace: DCB info children.
const (
	TagBatDCBNrSeriesCell          Tag = 0x03800100
	TagBatDCBNrParallelCell        Tag = 0x03800101
	TagBatDCBNrSensor              Tag = 0x03800102
	TagBatDCBCurrent               Tag = 0x03800103
	TagBatDCBCurrentAvg30s         Tag = 0x03800104
	TagBatDCBVoltage               Tag = 0x03800105
	TagBatDCBVoltageAvg30s         Tag = 0x03800106
	TagBatDCBSOC                   Tag = 0x03800107
	TagBatDCBSOH                   Tag = 0x03800108
	TagBatDCBCycleCount            Tag = 0x03800109
	TagBatDCBDesignCapacity        Tag = 0x0380010A
	TagBatDCBDesignVoltage         Tag = 0x0380010B
	TagBatDCBFullChargeCapacity    Tag = 0x0380010C
	TagBatDCBRemainingCapacity     Tag = 0x0380010D
	TagBatDCBMaxChargeVoltage      Tag = 0x0380010E
	TagBatDCBMaxChargeCurrent      Tag = 0x0380010F
	TagBatDCBMaxDischargeCurrent   Tag = 0x03800110
	TagBatDCBEndOfDischarge        Tag = 0x03800111
	TagBatDCBChargeHighTemperature Tag = 0x03800112
	TagBatDCBChargeLowTemperature  Tag = 0x03800113
	TagBatDCBDeviceName            Tag = 0x03800114
	TagBatDCBManufactureName       Tag = 0x03800115
	TagBatDCBManufactureDate       Tag = 0x03800116
	TagBatDCBSerialCode            Tag = 0x03800117
	TagBatDCBSerialNo              Tag = 0x03800118
	TagBatDCBFWVersion             Tag = 0x03800119
	TagBatDCBPCBVersion            Tag = 0x0380011A
	TagBatDCBProtocolVersion       Tag = 0x0380011B
	TagBatDCBStatus                Tag = 0x0380011C
	TagBatDCBWarning               Tag = 0x0380011D
	TagBatDCBError                 Tag = 0x0380011E
)

// History database namespace: daily aggregates. The request container
// carries start, interval and span; the response nests a sum container
// with the aggregated energies.
const (
	TagDBReqHistoryDataDay   Tag = 0x06000100
	TagDBHistoryTimeStart    Tag = 0x06000101
	TagDBHistoryTimeInterval Tag = 0x06000102
	TagDBHistoryTimeSpan     Tag = 0x06000103

	TagDBHistoryDataDay     Tag = 0x06800100
	TagDBSumContainer       Tag = 0x06800010
	TagDBBatPowerIn         Tag = 0x06800002
	TagDBBatPowerOut        Tag = 0x06800003
	TagDBDCPower            Tag = 0x06800004
	TagDBGridPowerIn        Tag = 0x06800005
	TagDBGridPowerOut       Tag = 0x06800006
	TagDBConsumption        Tag = 0x06800007
	TagDBBatChargeLevel     Tag = 0x0680000A
	TagDBConsumedProduction Tag = 0x0680000C
	TagDBAutarky            Tag = 0x0680000D
)

// Device info namespace.
const (
	TagInfoReqSerialNumber Tag = 0x0A000001
	TagInfoReqMACAddress   Tag = 0x0A000004
	TagInfoReqIPAddress    Tag = 0x0A000005
	TagInfoReqSWRelease    Tag = 0x0A000008

	TagInfoSerialNumber Tag = 0x0A800001
	TagInfoMACAddress   Tag = 0x0A800004
	TagInfoIPAddress    Tag = 0x0A800005
	TagInfoSWRelease    Tag = 0x0A800008
)
