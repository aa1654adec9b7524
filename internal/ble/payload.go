package ble

import (
	"encoding/json"
	"strings"
)

// rawDevice covers the field names seen across scan backends.
type rawDevice struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	DeviceName string `json:"device_name"`
	InnerMAC   string `json:"inner_mac_address"`
}

func (r rawDevice) device() (Device, bool) {
	d := Device{Name: r.Name, Address: r.Address}
	if d.Address == "" {
		d.Address = r.InnerMAC
	}
	if d.Name == "" {
		d.Name = r.DeviceName
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Address = strings.TrimSpace(d.Address)
	if d.Address == "" {
		return Device{}, false
	}
	return d, true
}

// ParseDiscoveredDevice normalizes one raw scan entry. It accepts a Device
// or *Device, JSON text (string, []byte or json.RawMessage), a string or
// any-valued map, and a bluetoothctl "Device <addr> <name>" line. Anything
// without an address is rejected.
func ParseDiscoveredDevice(raw any) (Device, bool) {
	switch v := raw.(type) {
	case Device:
		return rawDevice{Name: v.Name, Address: v.Address}.withServices(v.Services)
	case *Device:
		if v == nil {
			return Device{}, false
		}
		return rawDevice{Name: v.Name, Address: v.Address}.withServices(v.Services)
	case string:
		return parseText(v)
	case []byte:
		return parseJSON(v)
	case json.RawMessage:
		return parseJSON(v)
	case map[string]string:
		return rawDevice{
			Name:       v["name"],
			Address:    v["address"],
			DeviceName: v["device_name"],
			InnerMAC:   v["inner_mac_address"],
		}.device()
	case map[string]any:
		return rawDevice{
			Name:       stringField(v, "name"),
			Address:    stringField(v, "address"),
			DeviceName: stringField(v, "device_name"),
			InnerMAC:   stringField(v, "inner_mac_address"),
		}.device()
	default:
		return Device{}, false
	}
}

func (r rawDevice) withServices(services []string) (Device, bool) {
	d, ok := r.device()
	if ok {
		d.Services = services
	}
	return d, ok
}

func parseText(s string) (Device, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return parseJSON([]byte(s))
	}
	return parseBluetoothctl(s)
}

func parseJSON(b []byte) (Device, bool) {
	var r rawDevice
	if err := json.Unmarshal(b, &r); err != nil {
		return Device{}, false
	}
	return r.device()
}

// parseBluetoothctl reads "Device AA:BB:CC:DD:EE:FF Some Name".
func parseBluetoothctl(line string) (Device, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "Device" || !looksLikeMAC(fields[1]) {
		return Device{}, false
	}
	name := ""
	if len(fields) > 2 {
		name = strings.Join(fields[2:], " ")
	}
	return rawDevice{Name: name, Address: fields[1]}.device()
}

func looksLikeMAC(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i%3 == 2 {
			if c != ':' {
				return false
			}
			continue
		}
		if !isHex(c) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
