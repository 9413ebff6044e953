package vacuum

// Public property names.
const (
	PropError             = "error"
	PropState             = "state"
	PropBatteryLevel      = "batteryLevel"
	PropCleanTime         = "cleanTime"
	PropCleanArea         = "cleanArea"
	PropFanSpeed          = "fanSpeed"
	PropInCleaning        = "inCleaning"
	PropMainBrushWorkTime = "mainBrushWorkTime"
	PropSideBrushWorkTime = "sideBrushWorkTime"
	PropFilterWorkTime    = "filterWorkTime"
	PropSensorDirtyTime   = "sensorDirtyTime"
)

// NewVacuumSchema declares the status and consumable fields of the vacuum.
// error is declared before state so that a state change observes the
// error value of the same fetch.
func NewVacuumSchema() *Schema {
	s := NewSchema()
	s.Define("error_code", Named(PropError), Transformed(Func(errorFromCode)))
	s.Define("state", Named(PropState), Transformed(Enum(stateLabels, unknownStateFormat)))
	s.Define("battery", Named(PropBatteryLevel), Transformed(Integer()))
	s.Define("clean_time", Named(PropCleanTime), Transformed(Integer()))
	s.Define("clean_area", Named(PropCleanArea), Transformed(Scale(1000000)))
	s.Define("fan_power", Named(PropFanSpeed), Transformed(Integer()))
	s.Define("in_cleaning", Named(PropInCleaning), Transformed(Boolean()))

	s.Define("main_brush_work_time", Named(PropMainBrushWorkTime), Transformed(Integer()))
	s.Define("side_brush_work_time", Named(PropSideBrushWorkTime), Transformed(Integer()))
	s.Define("filter_work_time", Named(PropFilterWorkTime), Transformed(Integer()))
	s.Define("sensor_dirty_time", Named(PropSensorDirtyTime), Transformed(Integer()))
	return s
}
