package mavlink

import (
	"net"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v2"
	"github.com/pkg/errors"
)

// AutoAddress probes the local serial ports, then the SITL UDP port.
const AutoAddress = "auto"

// DefaultBaud is the telemetry radio rate most flight controllers ship with.
const DefaultBaud = 57600

const fallbackUDP = "127.0.0.1:14550"

// endpoint is one way of reaching a flight controller.
type endpoint struct {
	label string
	conf  gomavlib.EndpointConf
}

// parseAddress turns an address into the endpoints to try, in order. Accepted forms are
// serial:<device>[:baud], udp:<host:port>, udpserver:<host:port>, tcp:<host:port>, a bare device
// path, and auto.
func parseAddress(address string, defaultBaud int, discover func() ([]string, error)) ([]endpoint, error) {
	if defaultBaud <= 0 {
		defaultBaud = DefaultBaud
	}
	address = strings.TrimSpace(address)
	if address == "" || address == AutoAddress {
		return autoEndpoints(defaultBaud, discover), nil
	}
	if strings.HasPrefix(address, "/") {
		return []endpoint{serialEndpoint(address, defaultBaud)}, nil
	}

	scheme, rest, ok := strings.Cut(address, ":")
	if !ok || rest == "" {
		return nil, errors.Errorf("invalid vehicle address %q", address)
	}
	switch scheme {
	case "serial":
		device, baud := rest, defaultBaud
		if i := strings.LastIndex(rest, ":"); i > 0 {
			parsed, err := strconv.Atoi(rest[i+1:])
			if err != nil || parsed <= 0 {
				return nil, errors.Errorf("invalid baud rate in vehicle address %q", address)
			}
			device, baud = rest[:i], parsed
		}
		return []endpoint{serialEndpoint(device, baud)}, nil
	case "udp", "udpserver", "tcp":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return nil, errors.Wrapf(err, "invalid vehicle address %q", address)
		}
		var conf gomavlib.EndpointConf
		switch scheme {
		case "udp":
			conf = gomavlib.EndpointUDPClient{Address: rest}
		case "udpserver":
			conf = gomavlib.EndpointUDPServer{Address: rest}
		default:
			conf = gomavlib.EndpointTCPClient{Address: rest}
		}
		return []endpoint{{label: address, conf: conf}}, nil
	default:
		return nil, errors.Errorf("unknown vehicle address scheme %q", scheme)
	}
}

func serialEndpoint(device string, baud int) endpoint {
	return endpoint{
		label: "serial:" + device + ":" + strconv.Itoa(baud),
		conf:  gomavlib.EndpointSerial{Device: device, Baud: baud},
	}
}

func autoEndpoints(baud int, discover func() ([]string, error)) []endpoint {
	var endpoints []endpoint
	if discover != nil {
		//nolint:errcheck
		ports, _ := discover()
		for _, port := range ports {
			endpoints = append(endpoints, serialEndpoint(port, baud))
		}
	}
	return append(endpoints, endpoint{label: "udp:" + fallbackUDP, conf: gomavlib.EndpointUDPClient{Address: fallbackUDP}})
}
