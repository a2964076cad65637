// Package traci implements the subset of the TraCI binary protocol needed
// to drive a SUMO simulation over TCP: single-tick stepping, vehicle
// injection and telemetry queries, lane-change commands, and collision
// reports.
package traci

// Command identifiers.
const (
	cmdGetVersion     byte = 0x00
	cmdSimStep        byte = 0x02
	cmdClose          byte = 0x7f
	cmdGetVehicleVar  byte = 0xa4
	cmdSetVehicleVar  byte = 0xc4
	cmdGetRouteVar    byte = 0xa6
	cmdSetRouteVar    byte = 0xc6
	cmdGetSimVar      byte = 0xab
	cmdChangeLane     byte = 0x13
	cmdAddFullVehicle byte = 0x85
	cmdAddRoute       byte = 0x80
)

// Variable identifiers.
const (
	varIDList     byte = 0x00
	varSpeed      byte = 0x40
	varPosition   byte = 0x42
	varLaneIndex  byte = 0x52
	varTime       byte = 0x66
	varCollisions byte = 0x23
)

// Wire data types.
const (
	typeUByte      byte = 0x07
	typeByte       byte = 0x08
	typeInteger    byte = 0x09
	typeDouble     byte = 0x0b
	typeString     byte = 0x0c
	typeStringList byte = 0x0e
	typeCompound   byte = 0x0f
	typePosition2D byte = 0x01
)

// Status results.
const (
	statusOK  byte = 0x00
	statusErr byte = 0xff
)

// Response command IDs are the request ID plus 0x10 for variable
// retrieval commands (0xa4 -> 0xb4 and so on).
const responseOffset byte = 0x10
