package vacuum

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ErrorInfo describes a device-reported or synthesized operational error.
// A nil *ErrorInfo means no error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorInfoWire struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// MarshalJSON writes device error codes as numbers and synthesized codes
// such as "charging-error" as strings.
func (e ErrorInfo) MarshalJSON() ([]byte, error) {
	code, err := json.Marshal(e.Code)
	if err != nil {
		return nil, err
	}
	if n, convErr := strconv.Atoi(e.Code); convErr == nil {
		code = []byte(strconv.Itoa(n))
	}
	return json.Marshal(errorInfoWire{Code: code, Message: e.Message})
}

func (e *ErrorInfo) UnmarshalJSON(data []byte) error {
	var wire errorInfoWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Message = wire.Message
	e.Code = ""
	if len(wire.Code) == 0 || string(wire.Code) == "null" {
		return nil
	}
	var code string
	if err := json.Unmarshal(wire.Code, &code); err == nil {
		e.Code = code
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(wire.Code, &n); err != nil {
		return fmt.Errorf("error code %s: %w", string(wire.Code), err)
	}
	e.Code = n.String()
	return nil
}

// Snapshot maps public property names to their current value. Absent values are nil.
type Snapshot map[string]any

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Change is emitted for every property whose value differs between fetches.
type Change struct {
	Name     string `json:"name"`
	Value    any    `json:"value"`
	Previous any    `json:"previous"`
}

// SignalName identifies an observable derived value.
type SignalName string

const (
	SignalState    SignalName = "state"
	SignalCharging SignalName = "charging"
	SignalCleaning SignalName = "cleaning"
	SignalError    SignalName = "error"
	SignalFanSpeed SignalName = "fanSpeed"
)

// SignalUpdate is emitted when a signal changes value.
type SignalUpdate struct {
	Name  SignalName `json:"name"`
	Value any        `json:"value"`
}

// Signals is the derived view external consumers observe.
type Signals struct {
	State    string     `json:"state"`
	Charging bool       `json:"charging"`
	Cleaning bool       `json:"cleaning"`
	Error    *ErrorInfo `json:"error"`
	FanSpeed any        `json:"fanSpeed"`
}

// Zone is a rectangle in map coordinates cleaned Repeats times.
type Zone struct {
	X1      int `json:"x1"`
	Y1      int `json:"y1"`
	X2      int `json:"x2"`
	Y2      int `json:"y2"`
	Repeats int `json:"repeats"`
}

// CleanSummary is the device's cleaning history index.
type CleanSummary struct {
	TotalDuration time.Duration `json:"totalDuration"`
	TotalArea     float64       `json:"totalArea"`
	Count         int           `json:"count"`
	Days          []time.Time   `json:"days"`
}

// CleanRecord is one history entry.
type CleanRecord struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Area     float64       `json:"area"`
	Complete bool          `json:"complete"`
}

// AccessPoint describes the wifi network the device is joined to.
type AccessPoint struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
	RSSI  int    `json:"rssi"`
}

// NetIf describes the device's IP configuration.
type NetIf struct {
	LocalIP string `json:"localIp"`
	Mask    string `json:"mask"`
	Gateway string `json:"gw"`
}

// WiFi is the network part of the device identity.
type WiFi struct {
	AP    AccessPoint `json:"ap"`
	NetIf NetIf       `json:"netif"`
}

// Info is the device identity returned by miIO.info.
type Info struct {
	FirmwareVersion string      `json:"fw_ver"`
	HardwareVersion string      `json:"hw_ver"`
	MAC             string      `json:"mac"`
	Model           string      `json:"model"`
	Token           string      `json:"token"`
	AP              AccessPoint `json:"ap"`
	NetIf           NetIf       `json:"netif"`
}
