package simulator

// profile describes one telemetry channel: its nominal band, the value it
// reports when faulted, and its unit.
type profile struct {
	metric string
	lo, hi float64
	fault  float64
	unit   string
}

// profiles lists the channels of the simulated vehicle. Bands and fault
// values mirror the demo seeder so detections look the same either way.
var profiles = []profile{
	{metric: "engine_temp", lo: 600, hi: 650, fault: 850, unit: "C"},
	{metric: "fuel_pressure", lo: 300, hi: 350, fault: 150, unit: "PSI"},
	{metric: "altitude", lo: 1000, hi: 2000, fault: 50, unit: "m"},
	{metric: "velocity", lo: 500, hi: 600, fault: 1200, unit: "m/s"},
	{metric: "battery_voltage", lo: 24, hi: 26, fault: 15, unit: "V"},
	{metric: "fuel_level", lo: 70, hi: 90, fault: 20, unit: "%"},
	{metric: "acceleration_x", lo: -2, hi: 2, fault: 25, unit: "m/s^2"},
	{metric: "acceleration_y", lo: -2, hi: 2, fault: -20, unit: "m/s^2"},
	{metric: "acceleration_z", lo: 8, hi: 12, fault: 30, unit: "m/s^2"},
	{metric: "gyroscope_x", lo: -5, hi: 5, fault: 45, unit: "deg/s"},
	{metric: "gyroscope_y", lo: -5, hi: 5, fault: -40, unit: "deg/s"},
	{metric: "gyroscope_z", lo: -5, hi: 5, fault: 50, unit: "deg/s"},
}
