package traci

import (
	"fmt"
	"net"
	"time"
)

// Collision is one collider/victim pair reported by the simulation for the
// current tick.
type Collision struct {
	Collider string
	Victim   string
}

// CommandError is a simulator-side rejection of a command (status != OK on
// an otherwise healthy connection).
type CommandError struct {
	Command byte
	Desc    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("traci: command 0x%02x failed: %s", e.Command, e.Desc)
}

// Client is a TraCI control connection to a running simulator process. It
// is not safe for concurrent use; the training loop drives it strictly
// sequentially.
type Client struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to a simulator control port and performs the version
// handshake. A failure here is how an unavailable port is detected.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("traci: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, timeout: timeout}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("traci: handshake with %s: %w", addr, err)
	}
	return c, nil
}

func (c *Client) handshake() error {
	resp, err := c.roundTrip(cmdGetVersion, nil)
	if err != nil {
		return err
	}
	id, _, err := resp.readCommandHeader()
	if err != nil {
		return err
	}
	if id != cmdGetVersion {
		return fmt.Errorf("traci: unexpected handshake response 0x%02x", id)
	}
	if _, err := resp.readInt(); err != nil { // API version
		return err
	}
	_, err = resp.readString() // simulator version string
	return err
}

// roundTrip sends a single command and reads back the full response
// message, consuming and checking the leading status command. The returned
// reader is positioned at the first result command, if any.
func (c *Client) roundTrip(id byte, payload []byte) (*reader, error) {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}
	if err := writeMessage(c.conn, frameCommand(id, payload)); err != nil {
		return nil, err
	}
	body, err := readMessage(c.conn)
	if err != nil {
		return nil, err
	}
	resp := &reader{data: body}
	statusID, _, err := resp.readCommandHeader()
	if err != nil {
		return nil, err
	}
	if statusID != id {
		return nil, fmt.Errorf("traci: status for 0x%02x, want 0x%02x", statusID, id)
	}
	result, err := resp.readByte()
	if err != nil {
		return nil, err
	}
	desc, err := resp.readString()
	if err != nil {
		return nil, err
	}
	if result != statusOK {
		return nil, &CommandError{Command: id, Desc: desc}
	}
	return resp, nil
}

// getVariable performs a variable retrieval command and positions the
// reader at the typed value after validating the echoed variable/object.
func (c *Client) getVariable(cmd, variable byte, objectID string, wantType byte) (*reader, error) {
	var p packet
	p.writeByte(variable)
	p.writeString(objectID)
	resp, err := c.roundTrip(cmd, p.buf.Bytes())
	if err != nil {
		return nil, err
	}
	id, _, err := resp.readCommandHeader()
	if err != nil {
		return nil, err
	}
	if id != cmd+responseOffset {
		return nil, fmt.Errorf("traci: result command 0x%02x, want 0x%02x", id, cmd+responseOffset)
	}
	if _, err := resp.readByte(); err != nil { // echoed variable
		return nil, err
	}
	if _, err := resp.readString(); err != nil { // echoed object ID
		return nil, err
	}
	if err := resp.expectType(wantType); err != nil {
		return nil, err
	}
	return resp, nil
}

// SimulationStep advances the simulation by exactly one tick.
func (c *Client) SimulationStep() error {
	var p packet
	p.writeDouble(0) // zero target time = advance a single step
	resp, err := c.roundTrip(cmdSimStep, p.buf.Bytes())
	if err != nil {
		return err
	}
	if resp.remaining() >= 4 {
		if _, err := resp.readInt(); err != nil { // subscription result count
			return err
		}
	}
	return nil
}

// VehicleIDs lists the IDs of all vehicles currently in the network.
func (c *Client) VehicleIDs() ([]string, error) {
	resp, err := c.getVariable(cmdGetVehicleVar, varIDList, "", typeStringList)
	if err != nil {
		return nil, err
	}
	return resp.readStringList()
}

// Speed returns a vehicle's current speed in m/s.
func (c *Client) Speed(vehicleID string) (float64, error) {
	resp, err := c.getVariable(cmdGetVehicleVar, varSpeed, vehicleID, typeDouble)
	if err != nil {
		return 0, err
	}
	return resp.readDouble()
}

// Position returns a vehicle's x/y position in network coordinates.
func (c *Client) Position(vehicleID string) (float64, float64, error) {
	resp, err := c.getVariable(cmdGetVehicleVar, varPosition, vehicleID, typePosition2D)
	if err != nil {
		return 0, 0, err
	}
	x, err := resp.readDouble()
	if err != nil {
		return 0, 0, err
	}
	y, err := resp.readDouble()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// LaneIndex returns a vehicle's lane index on its current edge.
func (c *Client) LaneIndex(vehicleID string) (int, error) {
	resp, err := c.getVariable(cmdGetVehicleVar, varLaneIndex, vehicleID, typeInteger)
	if err != nil {
		return 0, err
	}
	v, err := resp.readInt()
	return int(v), err
}

// RouteIDs lists the IDs of all loaded routes.
func (c *Client) RouteIDs() ([]string, error) {
	resp, err := c.getVariable(cmdGetRouteVar, varIDList, "", typeStringList)
	if err != nil {
		return nil, err
	}
	return resp.readStringList()
}

// AddRoute registers a new route over the given edge sequence.
func (c *Client) AddRoute(routeID string, edges []string) error {
	var p packet
	p.writeByte(cmdAddRoute)
	p.writeString(routeID)
	p.writeByte(typeStringList)
	p.writeStringList(edges)
	_, err := c.roundTrip(cmdSetRouteVar, p.buf.Bytes())
	return err
}

// AddVehicle injects a vehicle into the network with full departure
// parameters (the TraCI addFull command).
func (c *Client) AddVehicle(vehicleID, routeID, typeID, depart, departLane, departSpeed string) error {
	var p packet
	p.writeByte(cmdAddFullVehicle)
	p.writeString(vehicleID)
	p.writeByte(typeCompound)
	p.writeInt(14)
	for _, s := range []string{
		routeID, typeID, depart,
		departLane, "base", departSpeed,
		"current", "max", "current", // arrival lane/pos/speed
		"", "", "", // from TAZ, to TAZ, line
	} {
		p.writeByte(typeString)
		p.writeString(s)
	}
	p.writeByte(typeInteger)
	p.writeInt(0) // person capacity
	p.writeByte(typeInteger)
	p.writeInt(0) // person number
	_, err := c.roundTrip(cmdSetVehicleVar, p.buf.Bytes())
	return err
}

// ChangeLane commands a vehicle onto the target lane index, holding it
// there for the given duration in seconds.
func (c *Client) ChangeLane(vehicleID string, laneIndex int, duration float64) error {
	var p packet
	p.writeByte(cmdChangeLane)
	p.writeString(vehicleID)
	p.writeByte(typeCompound)
	p.writeInt(2)
	p.writeByte(typeByte)
	p.writeByte(byte(laneIndex))
	p.writeByte(typeDouble)
	p.writeDouble(duration)
	_, err := c.roundTrip(cmdSetVehicleVar, p.buf.Bytes())
	return err
}

// SimTime returns the current simulation clock in seconds.
func (c *Client) SimTime() (float64, error) {
	resp, err := c.getVariable(cmdGetSimVar, varTime, "", typeDouble)
	if err != nil {
		return 0, err
	}
	return resp.readDouble()
}

// Collisions returns the collider/victim pairs reported for the last tick.
func (c *Client) Collisions() ([]Collision, error) {
	resp, err := c.getVariable(cmdGetSimVar, varCollisions, "", typeCompound)
	if err != nil {
		return nil, err
	}
	n, err := resp.readInt()
	if err != nil {
		return nil, err
	}
	collisions := make([]Collision, 0, n)
	for i := int32(0); i < n; i++ {
		var col Collision
		if err := resp.expectType(typeString); err != nil {
			return nil, err
		}
		if col.Collider, err = resp.readString(); err != nil {
			return nil, err
		}
		if err := resp.expectType(typeString); err != nil {
			return nil, err
		}
		if col.Victim, err = resp.readString(); err != nil {
			return nil, err
		}
		// Remaining per-collision fields: type strings, speeds, stage,
		// lane and position. Read and discard.
		for _, t := range []byte{typeString, typeString, typeDouble, typeDouble, typeString, typeString, typeDouble} {
			if err := resp.expectType(t); err != nil {
				return nil, err
			}
			switch t {
			case typeString:
				if _, err := resp.readString(); err != nil {
					return nil, err
				}
			case typeDouble:
				if _, err := resp.readDouble(); err != nil {
					return nil, err
				}
			}
		}
		collisions = append(collisions, col)
	}
	return collisions, nil
}

// Close sends the close command (best effort) and tears down the TCP
// connection.
func (c *Client) Close() error {
	_, _ = c.roundTrip(cmdClose, nil)
	return c.conn.Close()
}
