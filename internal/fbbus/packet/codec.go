package packet

import (
	"encoding/binary"
	"math"
)

// ParseText reads an ASCII string from payload starting at offset, stopping
// at the first DataSpace or Terminator byte (whichever comes first), and
// returns the text and the offset of the byte that stopped the scan.
func ParseText(payload []byte, offset int) (string, int) {
	end := FindNextSpace(payload, offset)
	if end < 0 {
		end = len(payload)
		for i := offset; i < len(payload); i++ {
			if payload[i] == Terminator {
				end = i
				break
			}
		}
	}
	if end < offset || end > len(payload) {
		end = len(payload)
	}
	return string(payload[offset:end]), end
}

// FindNextSpace returns the offset of the first DataSpace or Terminator
// byte at or after offset, or -1 if neither occurs before the end of
// payload.
func FindNextSpace(payload []byte, offset int) int {
	for i := offset; i < len(payload); i++ {
		if payload[i] == DataSpace || payload[i] == Terminator {
			return i
		}
	}
	return -1
}

// EncodeValue packs value into dt's little-endian wire representation.
// An Unknown data type or a nil value yields no bytes.
func EncodeValue(dt DataType, value any) []byte {
	if value == nil || dt == Unknown {
		return nil
	}
	buf := make([]byte, dt.Size())
	switch dt {
	case Bool:
		if b, ok := value.(bool); ok && b {
			buf[0] = 1
		}
	case UInt8:
		buf[0] = byte(toInt64(value))
	case Int8:
		buf[0] = byte(int8(toInt64(value)))
	case UInt16:
		binary.LittleEndian.PutUint16(buf, uint16(toInt64(value)))
	case Int16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(toInt64(value))))
	case UInt32, Time, Date, DateTime:
		binary.LittleEndian.PutUint32(buf, uint32(toInt64(value)))
	case Int32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(toInt64(value))))
	case Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(toFloat64(value))))
	default:
		return nil
	}
	return buf
}

// DecodeValue unpacks dt's little-endian wire representation from buf,
// returning a numeric value, a bool (for Bool), or nil for an Unknown data
// type or a short buffer.
func DecodeValue(dt DataType, buf []byte) any {
	if dt == Unknown || len(buf) < dt.Size() {
		return nil
	}
	switch dt {
	case Bool:
		return buf[0] != 0
	case UInt8:
		return uint64(buf[0])
	case Int8:
		return int64(int8(buf[0]))
	case UInt16:
		return uint64(binary.LittleEndian.Uint16(buf))
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(buf)))
	case UInt32, Time, Date, DateTime:
		return uint64(binary.LittleEndian.Uint32(buf))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(buf)))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	default:
		return nil
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case float32:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	default:
		return float64(toInt64(v))
	}
}
