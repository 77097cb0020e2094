// internal/link/transport.go
package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// TCPTransport is the production Transport, backed by a goburrow Modbus
// TCP client handler. One instance per device endpoint.
type TCPTransport struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewTCPTransport creates a transport for host:port with the given I/O
// timeout. No connection is made until Connect.
func NewTCPTransport(address string, timeout time.Duration) *TCPTransport {
	handler := modbus.NewTCPClientHandler(address)
	handler.Timeout = timeout
	return &TCPTransport{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

// Connect dials the device.
func (t *TCPTransport) Connect() error {
	return t.handler.Connect()
}

// Close closes the TCP connection.
func (t *TCPTransport) Close() error {
	return t.handler.Close()
}

// ReadHoldingRegisters issues FC 3 and unpacks the big-endian payload
// into registers. Device exception responses come back as *ProtocolError.
func (t *TCPTransport) ReadHoldingRegisters(unitID byte, address, quantity uint16) ([]uint16, error) {
	t.handler.SlaveId = unitID

	data, err := t.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		var me *modbus.ModbusError
		if errors.As(err, &me) {
			return nil, &ProtocolError{UnitID: unitID, Address: address, Code: me.ExceptionCode}
		}
		return nil, err
	}

	if len(data)%2 != 0 {
		return nil, fmt.Errorf("modbus read: odd payload length %d", len(data))
	}
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return regs, nil
}
