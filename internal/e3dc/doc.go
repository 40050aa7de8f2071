// Package e3dc assembles typed telemetry records from raw RSCP round
// trips against an E3DC home power plant.
//
// This package manages:
//   - One-time battery topology discovery and static identity reads
//   - Live power status snapshots ([Client.GetStatus])
//   - System configuration snapshots ([Client.GetSystemInfo])
//   - Full battery and per-DCB readings ([Client.GetBatteryData])
//   - Daily energy aggregates from the device history database
//     ([Client.GetDailyStatistics])
//
// # Architecture
//
// The client sits between the rscp transport and the bridge poller:
//
//	bridge poller → e3dc.Client → rscp.Client → device
//
// Each Get method issues one or a few batched round trips, navigates
// the tagged response tree and returns a flat record. Raw values keep
// the units and sign conventions the device reports; rounding and
// directional splitting happen downstream in the bridge layer.
//
// All methods are fail-fast: a missing tag or refused coercion aborts
// the whole snapshot rather than publishing partial data. The caller
// treats any error as fatal for the session.
//
// # Usage
//
//	transport, err := rscp.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	dev, err := e3dc.New(ctx, transport)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	status, err := dev.GetStatus(ctx)
//	for _, battery := range dev.Batteries() {
//	    data, err := dev.GetBatteryData(ctx, battery)
//	    ...
//	}
package e3dc
