package vacuum

import (
	"fmt"
	"strconv"
)

const (
	LabelInitiating     = "initiating"
	LabelChargerOffline = "charger-offline"
	LabelWaiting        = "waiting"
	LabelCleaning       = "cleaning"
	LabelReturning      = "returning"
	LabelCharging       = "charging"
	LabelChargingError  = "charging-error"
	LabelPaused         = "paused"
	LabelSpotCleaning   = "spot-cleaning"
	LabelError          = "error"
	LabelShuttingDown   = "shutting-down"
	LabelUpdating       = "updating"
	LabelDocking        = "docking"
	LabelZoneCleaning   = "zone-cleaning"
	LabelFull           = "full"
)

const unknownStateFormat = "unknown-%d"

var stateLabels = map[int]string{
	1:   LabelInitiating,
	2:   LabelChargerOffline,
	3:   LabelWaiting,
	5:   LabelCleaning,
	6:   LabelReturning,
	8:   LabelCharging,
	9:   LabelChargingError,
	10:  LabelPaused,
	11:  LabelSpotCleaning,
	12:  LabelError,
	13:  LabelShuttingDown,
	14:  LabelUpdating,
	15:  LabelDocking,
	17:  LabelZoneCleaning,
	100: LabelFull,
}

// StateLabel maps a raw state code to its semantic label.
func StateLabel(code int) string {
	if label, ok := stateLabels[code]; ok {
		return label
	}
	return fmt.Sprintf(unknownStateFormat, code)
}

var (
	chargingError  = ErrorInfo{Code: LabelChargingError, Message: "Error during charging"}
	chargerOffline = ErrorInfo{Code: LabelChargerOffline, Message: "Charger is offline"}
)

// Status is the set of signals derived from one state label.
type Status struct {
	Label    string
	Charging bool
	Cleaning bool
	Error    *ErrorInfo
}

// DeriveStatus computes the signals for label. current is the mapped
// error property and is only consulted for the error label.
func DeriveStatus(label string, current *ErrorInfo) Status {
	status := Status{Label: label}
	status.Charging = label == LabelCharging
	switch label {
	case LabelCleaning, LabelSpotCleaning, LabelZoneCleaning:
		status.Cleaning = true
	}
	switch label {
	case LabelError:
		status.Error = current
	case LabelChargingError:
		e := chargingError
		status.Error = &e
	case LabelChargerOffline:
		e := chargerOffline
		status.Error = &e
	}
	return status
}

// errorFromCode maps the raw error_code field. 0 means no error and maps
// to an untyped nil, so it compares equal to an absent field.
func errorFromCode(raw any) any {
	code := intFrom(raw)
	if code == 0 {
		return nil
	}
	c := strconv.Itoa(code)
	return &ErrorInfo{Code: c, Message: "Unknown error " + c}
}

func errorValue(v any) *ErrorInfo {
	e, _ := v.(*ErrorInfo)
	return e
}
