// internal/decode/decode.go
package decode

import (
	"fmt"
	"strings"
)

// DataType is the wire representation of one field.
type DataType uint8

const (
	// Int16 is a single register, read as unsigned 16-bit.
	Int16 DataType = iota
	// Int32 spans two consecutive registers.
	Int32
)

func (t DataType) String() string {
	switch t {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}

// Words reports how many registers the type occupies.
func (t DataType) Words() int {
	if t == Int32 {
		return 2
	}
	return 1
}

// ParseDataType maps a config string to a DataType.
// Case-insensitive; empty means Int16. Unknown tags are rejected.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "", "int16":
		return Int16, nil
	case "int32":
		return Int32, nil
	default:
		return 0, fmt.Errorf("unsupported data_type %q (want int16 or int32)", s)
	}
}

// WordOrder selects how two registers combine into a 32-bit value.
type WordOrder uint8

const (
	// HighWordFirst: first register is the high word, (hi<<16)|lo.
	// Many vendors use the opposite, so this is configurable per sensor.
	HighWordFirst WordOrder = iota
	// LowWordFirst: first register is the low word.
	LowWordFirst
)

func (o WordOrder) String() string {
	if o == LowWordFirst {
		return "little"
	}
	return "big"
}

// ParseWordOrder maps a config string to a WordOrder.
// Empty means HighWordFirst.
func ParseWordOrder(s string) (WordOrder, error) {
	switch strings.ToLower(s) {
	case "", "big":
		return HighWordFirst, nil
	case "little":
		return LowWordFirst, nil
	default:
		return 0, fmt.Errorf("unsupported word_order %q (want big or little)", s)
	}
}

// FieldSpec describes how one output field is extracted from a register
// block. Immutable after config build.
type FieldSpec struct {
	Name  string
	Index int
	Scale float64
	Type  DataType
}

// DecodeError reports a field whose register span falls outside the block
// actually returned by the device. Validation rules this out for full
// blocks, but a short read can still produce it at runtime.
type DecodeError struct {
	Field    string
	Index    int
	BlockLen int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: index %d out of range for %d-register block",
		e.Field, e.Index, e.BlockLen)
}

// Decode extracts one field value from a raw register block and applies
// the linear scale. Registers are treated as unsigned.
func Decode(block []uint16, f FieldSpec, order WordOrder) (float64, error) {
	last := f.Index + f.Type.Words() - 1
	if f.Index < 0 || last >= len(block) {
		return 0, &DecodeError{Field: f.Name, Index: f.Index, BlockLen: len(block)}
	}

	switch f.Type {
	case Int32:
		hi, lo := block[f.Index], block[f.Index+1]
		if order == LowWordFirst {
			hi, lo = lo, hi
		}
		raw := uint32(hi)<<16 | uint32(lo)
		return float64(raw) * f.Scale, nil
	default:
		return float64(block[f.Index]) * f.Scale, nil
	}
}
