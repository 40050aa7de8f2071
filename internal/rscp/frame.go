package rscp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"time"
)

// Wire framing constants. All multi-byte fields are little-endian.
const (
	frameMagic0 = 0xE3
	frameMagic1 = 0xDC

	// ctrl field: low nibble is the protocol version, bit 4 signals a
	// trailing CRC-32.
	ctrlVersion uint16 = 0x0001
	ctrlFlagCRC uint16 = 0x0010

	// frameHeaderLen is magic(2) + ctrl(2) + seconds(8) + nanos(4) + length(2).
	frameHeaderLen = 18

	// itemHeaderLen is tag(4) + type(1) + length(2).
	itemHeaderLen = 7

	crcLen       = 4
	timestampLen = 12

	// maxNestingDepth bounds container recursion. Device responses
	// nest at most four levels; the extra headroom avoids rejecting
	// firmware quirks while still stopping runaway recursion.
	maxNestingDepth = 8
)

// Frame is one protocol message: a header timestamp plus a flat list
// of tagged items.
type Frame struct {
	// Timestamp is the send time from the frame header. The device
	// stamps its responses, which is what snapshot records use.
	Timestamp time.Time

	Items []Item
}

// NewFrame builds a request frame stamped with the current time.
func NewFrame(items ...Item) Frame {
	return Frame{Timestamp: time.Now().UTC(), Items: items}
}

// Encode serializes the frame with a trailing CRC-32. The result is
// plaintext; the client encrypts it before sending.
func (f Frame) Encode() ([]byte, error) {
	body := make([]byte, 0, 256)
	var err error
	for _, item := range f.Items {
		body, err = appendItem(body, item, 0)
		if err != nil {
			return nil, err
		}
	}
	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: item section is %d bytes, limit %d", ErrInvalidFrame, len(body), math.MaxUint16)
	}

	buf := make([]byte, 0, frameHeaderLen+len(body)+crcLen)
	buf = append(buf, frameMagic0, frameMagic1)
	buf = binary.LittleEndian.AppendUint16(buf, ctrlVersion|ctrlFlagCRC)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(f.Timestamp.Unix()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Timestamp.Nanosecond()))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(body)))
	buf = append(buf, body...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// frameSize validates the header and returns the full frame size
// including an optional CRC. Callers may pass a longer buffer; bytes
// beyond the reported size are cipher padding.
func frameSize(data []byte) (int, error) {
	if len(data) < frameHeaderLen {
		return 0, fmt.Errorf("%w: truncated header (%d bytes)", ErrInvalidFrame, len(data))
	}
	if data[0] != frameMagic0 || data[1] != frameMagic1 {
		return 0, fmt.Errorf("%w: bad magic 0x%02X%02X", ErrInvalidFrame, data[0], data[1])
	}
	ctrl := binary.LittleEndian.Uint16(data[2:4])
	if ctrl&0x000F != ctrlVersion {
		return 0, fmt.Errorf("%w: unsupported protocol version 0x%04X", ErrInvalidFrame, ctrl)
	}
	size := frameHeaderLen + int(binary.LittleEndian.Uint16(data[16:18]))
	if ctrl&ctrlFlagCRC != 0 {
		size += crcLen
	}
	return size, nil
}

// DecodeFrame parses a plaintext frame. Trailing bytes beyond the
// declared length are ignored, which is where block cipher padding
// ends up after decryption.
func DecodeFrame(data []byte) (Frame, error) {
	size, err := frameSize(data)
	if err != nil {
		return Frame{}, err
	}
	if len(data) < size {
		return Frame{}, fmt.Errorf("%w: truncated frame (have %d bytes, need %d)", ErrInvalidFrame, len(data), size)
	}

	ctrl := binary.LittleEndian.Uint16(data[2:4])
	seconds := int64(binary.LittleEndian.Uint64(data[4:12]))
	nanos := binary.LittleEndian.Uint32(data[12:16])
	bodyEnd := size - crcLenIf(ctrl)
	body := data[frameHeaderLen:bodyEnd]

	if ctrl&ctrlFlagCRC != 0 {
		want := binary.LittleEndian.Uint32(data[bodyEnd:size])
		got := crc32.ChecksumIEEE(data[:bodyEnd])
		if got != want {
			return Frame{}, fmt.Errorf("%w: CRC mismatch (got 0x%08X, want 0x%08X)", ErrInvalidFrame, got, want)
		}
	}

	items, err := decodeItems(body, 0)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Timestamp: time.Unix(seconds, int64(nanos)).UTC(),
		Items:     items,
	}, nil
}

// crcLenIf returns the CRC trailer size for the given ctrl field.
func crcLenIf(ctrl uint16) int {
	if ctrl&ctrlFlagCRC != 0 {
		return crcLen
	}
	return 0
}

// appendItem serializes one item including its header.
func appendItem(buf []byte, item Item, depth int) ([]byte, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: container nesting exceeds %d levels", ErrInvalidFrame, maxNestingDepth)
	}

	payload, err := appendPayload(nil, item.Value, depth)
	if err != nil {
		return nil, fmt.Errorf("tag %s: %w", item.Tag, err)
	}
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: tag %s payload is %d bytes, limit %d", ErrInvalidFrame, item.Tag, len(payload), math.MaxUint16)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(item.Tag))
	buf = append(buf, byte(item.Value.kind))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	return append(buf, payload...), nil
}

// appendPayload serializes a value without its item header.
func appendPayload(buf []byte, v Value, depth int) ([]byte, error) {
	switch v.kind {
	case KindNone:
		return buf, nil
	case KindBool:
		if v.b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case KindInt8:
		return append(buf, byte(int8(v.i))), nil
	case KindUInt8:
		return append(buf, byte(v.u)), nil
	case KindInt16:
		return binary.LittleEndian.AppendUint16(buf, uint16(int16(v.i))), nil
	case KindUInt16:
		return binary.LittleEndian.AppendUint16(buf, uint16(v.u)), nil
	case KindInt32:
		return binary.LittleEndian.AppendUint32(buf, uint32(int32(v.i))), nil
	case KindUInt32:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.u)), nil
	case KindInt64:
		return binary.LittleEndian.AppendUint64(buf, uint64(v.i)), nil
	case KindUInt64:
		return binary.LittleEndian.AppendUint64(buf, v.u), nil
	case KindFloat32:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.f))), nil
	case KindFloat64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f)), nil
	case KindBitfield, KindByteArray:
		return append(buf, v.raw...), nil
	case KindText:
		return append(buf, v.s...), nil
	case KindContainer:
		var err error
		for _, child := range v.items {
			buf, err = appendItem(buf, child, depth+1)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindTimestamp:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.ts.Unix()))
		return binary.LittleEndian.AppendUint32(buf, uint32(v.ts.Nanosecond())), nil
	case KindError:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.u)), nil
	default:
		return nil, fmt.Errorf("%w: unknown data type 0x%02X", ErrInvalidFrame, uint8(v.kind))
	}
}

// decodeItems parses a flat item list until the buffer is consumed.
func decodeItems(data []byte, depth int) ([]Item, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: container nesting exceeds %d levels", ErrInvalidFrame, maxNestingDepth)
	}

	var items []Item
	for len(data) > 0 {
		if len(data) < itemHeaderLen {
			return nil, fmt.Errorf("%w: truncated item header (%d bytes)", ErrInvalidFrame, len(data))
		}
		tag := Tag(binary.LittleEndian.Uint32(data[0:4]))
		kind := Kind(data[4])
		length := int(binary.LittleEndian.Uint16(data[5:7]))
		if len(data) < itemHeaderLen+length {
			return nil, fmt.Errorf("%w: tag %s payload truncated (have %d bytes, need %d)",
				ErrInvalidFrame, tag, len(data)-itemHeaderLen, length)
		}

		value, err := decodePayload(kind, data[itemHeaderLen:itemHeaderLen+length], depth)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tag, err)
		}

		items = append(items, Item{Tag: tag, Value: value})
		data = data[itemHeaderLen+length:]
	}
	return items, nil
}

// decodePayload parses one value of the given kind.
func decodePayload(kind Kind, payload []byte, depth int) (Value, error) {
	switch kind {
	case KindNone:
		if err := wantLen(kind, payload, 0); err != nil {
			return Value{}, err
		}
		return Value{}, nil
	case KindBool:
		if err := wantLen(kind, payload, 1); err != nil {
			return Value{}, err
		}
		return Bool(payload[0] != 0), nil
	case KindInt8:
		if err := wantLen(kind, payload, 1); err != nil {
			return Value{}, err
		}
		return Int8(int8(payload[0])), nil
	case KindUInt8:
		if err := wantLen(kind, payload, 1); err != nil {
			return Value{}, err
		}
		return UInt8(payload[0]), nil
	case KindInt16:
		if err := wantLen(kind, payload, 2); err != nil {
			return Value{}, err
		}
		return Int16(int16(binary.LittleEndian.Uint16(payload))), nil
	case KindUInt16:
		if err := wantLen(kind, payload, 2); err != nil {
			return Value{}, err
		}
		return UInt16(binary.LittleEndian.Uint16(payload)), nil
	case KindInt32:
		if err := wantLen(kind, payload, 4); err != nil {
			return Value{}, err
		}
		return Int32(int32(binary.LittleEndian.Uint32(payload))), nil
	case KindUInt32:
		if err := wantLen(kind, payload, 4); err != nil {
			return Value{}, err
		}
		return UInt32(binary.LittleEndian.Uint32(payload)), nil
	case KindInt64:
		if err := wantLen(kind, payload, 8); err != nil {
			return Value{}, err
		}
		return Int64(int64(binary.LittleEndian.Uint64(payload))), nil
	case KindUInt64:
		if err := wantLen(kind, payload, 8); err != nil {
			return Value{}, err
		}
		return UInt64(binary.LittleEndian.Uint64(payload)), nil
	case KindFloat32:
		if err := wantLen(kind, payload, 4); err != nil {
			return Value{}, err
		}
		return Float32(math.Float32frombits(binary.LittleEndian.Uint32(payload))), nil
	case KindFloat64:
		if err := wantLen(kind, payload, 8); err != nil {
			return Value{}, err
		}
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(payload))), nil
	case KindBitfield:
		return Bitfield(append([]byte(nil), payload...)), nil
	case KindText:
		return Text(string(payload)), nil
	case KindContainer:
		children, err := decodeItems(payload, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Container(children...), nil
	case KindTimestamp:
		if err := wantLen(kind, payload, timestampLen); err != nil {
			return Value{}, err
		}
		seconds := int64(binary.LittleEndian.Uint64(payload[0:8]))
		nanos := binary.LittleEndian.Uint32(payload[8:12])
		return Timestamp(time.Unix(seconds, int64(nanos)).UTC()), nil
	case KindByteArray:
		return ByteArray(append([]byte(nil), payload...)), nil
	case KindError:
		if err := wantLen(kind, payload, 4); err != nil {
			return Value{}, err
		}
		return ErrorCode(binary.LittleEndian.Uint32(payload)), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown data type 0x%02X", ErrInvalidFrame, uint8(kind))
	}
}

// wantLen validates a fixed-width payload size.
func wantLen(kind Kind, payload []byte, n int) error {
	if len(payload) != n {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrInvalidFrame, kind, len(payload), n)
	}
	return nil
}
