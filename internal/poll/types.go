// internal/poll/types.go
package poll

import (
	"time"

	"github.com/fcolinet/wxmodbus/internal/decode"
)

// GroupSpec is one validated Modbus read request and the fields extracted
// from its register block. Built once at startup, immutable afterwards.
type GroupSpec struct {
	Name   string
	UnitID byte
	Start  uint16
	Length uint16
	Order  decode.WordOrder
	Fields []decode.FieldSpec
}

// Reading is one decoded field value, handed to the sink and owned by it.
type Reading struct {
	Field string    `json:"field"`
	Value float64   `json:"value"`
	At    time.Time `json:"ts"`
}

// Sink receives decoded readings. Implementations must not retain the
// Reading's backing memory beyond the call (it is a value type anyway).
type Sink interface {
	Publish(Reading) error
}
