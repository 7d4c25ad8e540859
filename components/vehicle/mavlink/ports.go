package mavlink

import (
	"slices"
	"strings"

	"go.bug.st/serial"
)

// preferredPorts are the usual flight controller connections on a companion computer: the
// Raspberry Pi UART aliases, then the first USB serial adapter.
var preferredPorts = []string{"/dev/serial0", "/dev/ttyAMA0", "/dev/ttyUSB0"}

// SerialPorts lists every serial port on the system.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// CandidatePorts lists the serial ports that may host a flight controller, preferred ports first.
func CandidatePorts() ([]string, error) {
	ports, err := SerialPorts()
	if err != nil {
		return nil, err
	}
	return filterCandidates(ports), nil
}

func filterCandidates(ports []string) []string {
	var out []string
	for _, preferred := range preferredPorts {
		if slices.Contains(ports, preferred) {
			out = append(out, preferred)
		}
	}
	var rest []string
	for _, port := range ports {
		if slices.Contains(out, port) {
			continue
		}
		if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
			rest = append(rest, port)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
