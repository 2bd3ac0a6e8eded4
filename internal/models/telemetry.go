package models

import (
	"time"
)

// TelemetryPacket is one simulated reading for one vehicle at one timestamp.
// Field names are the stable contract shared by the trusted and quarantine stores.
type TelemetryPacket struct {
	VehicleID      string    `bson:"vehicle_id" json:"vehicle_id" parquet:"vehicle_id"`
	Timestamp      time.Time `bson:"timestamp" json:"timestamp" parquet:"timestamp,timestamp(microsecond)"`
	SpeedKmph      float64   `bson:"speed_kmph" json:"speed_kmph" parquet:"speed_kmph"`
	RPM            int64     `bson:"rpm" json:"rpm" parquet:"rpm"`
	EngineTempC    float64   `bson:"engine_temp" json:"engine_temp" parquet:"engine_temp"`
	FuelRateLPerHr float64   `bson:"fuel_rate" json:"fuel_rate" parquet:"fuel_rate"`
	BatteryVoltage float64   `bson:"battery_voltage" json:"battery_voltage" parquet:"battery_voltage"`
	Lat            float64   `bson:"lat" json:"lat" parquet:"lat"`
	Lon            float64   `bson:"lon" json:"lon" parquet:"lon"`
}

// TelemetryColumns is the column order used by every row-oriented writer.
var TelemetryColumns = []string{
	"vehicle_id",
	"timestamp",
	"speed_kmph",
	"rpm",
	"engine_temp",
	"fuel_rate",
	"battery_voltage",
	"lat",
	"lon",
}

// Fault identifies which anomaly band, if any, overwrote a packet.
type Fault string

const (
	FaultNone          Fault = ""
	FaultDataIntegrity Fault = "data_integrity"
	FaultThermal       Fault = "thermal"
	FaultElectrical    Fault = "electrical"
	FaultHighIdle      Fault = "high_idle"
)

// Faults lists the injectable faults in band order.
var Faults = []Fault{FaultDataIntegrity, FaultThermal, FaultElectrical, FaultHighIdle}
