package mqttbus

import "path"

// Topics names the broker topics of one device.
type Topics struct {
	Prefix   string
	DeviceID string
}

func (t Topics) Request() string {
	return path.Join(t.Prefix, t.DeviceID, "rpc", "request")
}

func (t Topics) Response() string {
	return path.Join(t.Prefix, t.DeviceID, "rpc", "response")
}

// State is the retained topic carrying the latest value of a signal.
func (t Topics) State(signal string) string {
	return path.Join(t.Prefix, t.DeviceID, "state", signal)
}

func (t Topics) Property(name string) string {
	return path.Join(t.Prefix, t.DeviceID, "property", name)
}
