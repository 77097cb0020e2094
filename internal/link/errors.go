// internal/link/errors.go
package link

import "fmt"

// Modbus exception codes (application-level rejections returned by the
// device in place of data).
const (
	ExcIllegalFunction    = 1
	ExcIllegalDataAddress = 2
	ExcIllegalDataValue   = 3
	ExcServerFailure      = 4
	ExcAcknowledge        = 5
	ExcServerBusy         = 6
	ExcMemoryParityError  = 8
	ExcGatewayPath        = 10
	ExcGatewayNoResponse  = 11
)

// ExceptionText returns the standard meaning of a Modbus exception code.
func ExceptionText(code byte) string {
	switch code {
	case ExcIllegalFunction:
		return "illegal function"
	case ExcIllegalDataAddress:
		return "illegal data address"
	case ExcIllegalDataValue:
		return "illegal data value"
	case ExcServerFailure:
		return "server device failure"
	case ExcAcknowledge:
		return "acknowledge"
	case ExcServerBusy:
		return "server device busy"
	case ExcMemoryParityError:
		return "memory parity error"
	case ExcGatewayPath:
		return "gateway path unavailable"
	case ExcGatewayNoResponse:
		return "gateway target device failed to respond"
	default:
		return "unknown"
	}
}

// ProtocolError is a Modbus exception response. The TCP connection itself
// is healthy; the device rejected this particular request.
type ProtocolError struct {
	UnitID  byte
	Address uint16
	Code    byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus exception %d (%s) unit=%d addr=%d",
		e.Code, ExceptionText(e.Code), e.UnitID, e.Address)
}

// ConnError is a socket-level failure: dial, write, read or timeout.
// It drives the reconnect/backoff cycle and is never fatal.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("modbus %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }
