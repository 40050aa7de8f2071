// Package rscp implements the RSCP binary protocol spoken by E3DC
// home power plants on TCP port 5033.
//
// RSCP exchanges frames of tagged items. Every item carries a 32-bit
// tag, a wire type and an optional payload; container items nest
// further items, which is how the device groups battery or history
// data. All traffic is AES-256-CBC encrypted with a key configured on
// the device, using a rolling IV per direction.
//
// The package provides three layers:
//
//   - Value and Item model the tagged data union ([Bool], [Int32],
//     [Text], [Container], ...) with checked coercions ([Value.AsBool],
//     [Value.AsFloat64], [Value.AsUint64], [Value.AsString]).
//   - Frame encoding and decoding ([Frame.Encode], [DecodeFrame])
//     including CRC verification, plus tag navigation helpers
//     ([Find], [Children], [FindFloat64], ...).
//   - Client performs the authentication handshake and synchronous
//     request/response round trips ([Connect], [Client.Send]).
//
// Usage:
//
//	client, err := rscp.Connect(ctx, rscp.Config{
//		Host:     "10.0.0.12",
//		Username: "user@example.com",
//		Password: "secret",
//		Key:      "rscp-key",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	resp, err := client.Send(ctx, []rscp.Item{
//		rscp.EmptyItem(rscp.TagEMSReqPowerPV),
//	})
//	if err != nil {
//		return err
//	}
//	pv, err := rscp.FindFloat64(resp.Items, rscp.TagEMSPowerPV)
//
// The client serializes round trips internally and is safe for
// concurrent use. It does not reconnect on its own; callers decide
// whether a broken connection is fatal.
package rscp
