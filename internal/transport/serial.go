package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens the bridge serial port at 8N1.
func OpenSerial(portName string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}

	// USB CDC ACM bridges only start forwarding once DTR/RTS are asserted.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
