// Package lxservo speaks the LX-16A style serial bus servo protocol.  The
// bus is half duplex with a single master; one request is always answered
// (or times out) before the next is sent, which the connection pool of size
// one guarantees.
package lxservo

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/skyswordx/gripperd/comm"
)

const (
	// maxMoveMs is the longest single commanded move the servo accepts
	maxMoveMs = 30000

	defaultTimeout = 250 * time.Millisecond
)

// Bus is a single-master view of one servo bus.  It satisfies
// gripper.Transport.
type Bus struct {
	pool    *comm.Pool
	timeout time.Duration
}

// NewBus returns a Bus on top of any connection maker, serial or bridged
func NewBus(maker comm.CreationFunc) *Bus {
	return &Bus{
		pool:    comm.NewPool(1, time.Minute, maker),
		timeout: defaultTimeout,
	}
}

// NewSerialBus returns a Bus on a local serial port at the servo's fixed
// 115200 baud
func NewSerialBus(port string) *Bus {
	cfg := &serial.Config{
		Name:        port,
		Baud:        115200,
		ReadTimeout: defaultTimeout,
	}
	return NewBus(comm.SerialConnMaker(cfg))
}

// send writes a command that expects no response
func (b *Bus) send(id, cmd byte, params ...byte) error {
	conn, err := b.pool.Get()
	if err != nil {
		return err
	}
	defer func() { b.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTimeout(conn, b.timeout)
	_, err = wrap.Write(encodeFrame(id, cmd, params...))
	return err
}

// sendRecv writes a command and reads the matching response's params
func (b *Bus) sendRecv(id, cmd byte, params ...byte) ([]byte, error) {
	conn, err := b.pool.Get()
	if err != nil {
		return nil, err
	}
	defer func() { b.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTimeout(conn, b.timeout)
	_, err = wrap.Write(encodeFrame(id, cmd, params...))
	if err != nil {
		return nil, err
	}
	rid, rcmd, rparams, err := readFrame(wrap)
	if err != nil {
		return nil, err
	}
	if rid != id || rcmd != cmd {
		err = fmt.Errorf("lxservo: response from servo %d cmd %d, expected %d/%d",
			rid, rcmd, id, cmd)
		return nil, err
	}
	return rparams, nil
}

// ReadAngle reads the present position of one servo in degrees
func (b *Bus) ReadAngle(id int) (float64, error) {
	params, err := b.sendRecv(byte(id), cmdPosRead)
	if err != nil {
		return 0, err
	}
	if len(params) != 2 {
		return 0, fmt.Errorf("lxservo: position response carried %d params, expected 2", len(params))
	}
	ticks := int16(binary.LittleEndian.Uint16(params))
	return ticksToAngle(ticks), nil
}

// WritePosition commands one servo to angle over duration.  Durations are
// clamped to the servo's 30 second maximum.
func (b *Bus) WritePosition(id int, angle float64, duration time.Duration) error {
	ms := duration.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > maxMoveMs {
		ms = maxMoveMs
	}
	ticks := angleToTicks(angle)
	params := []byte{
		byte(ticks), byte(ticks >> 8),
		byte(ms), byte(ms >> 8),
	}
	return b.send(byte(id), cmdMoveTimeWrite, params...)
}

// Halt stops an in-flight move at the present position
func (b *Bus) Halt(id int) error {
	return b.send(byte(id), cmdMoveStop)
}

// SetLoad enables or disables the servo's output torque
func (b *Bus) SetLoad(id int, on bool) error {
	var v byte
	if on {
		v = 1
	}
	return b.send(byte(id), cmdLoadWrite, v)
}

// Temperature reads the servo's internal temperature in degrees C
func (b *Bus) Temperature(id int) (int, error) {
	params, err := b.sendRecv(byte(id), cmdTempRead)
	if err != nil {
		return 0, err
	}
	if len(params) != 1 {
		return 0, fmt.Errorf("lxservo: temperature response carried %d params, expected 1", len(params))
	}
	return int(params[0]), nil
}

// Voltage reads the servo's input voltage in volts
func (b *Bus) Voltage(id int) (float64, error) {
	params, err := b.sendRecv(byte(id), cmdVinRead)
	if err != nil {
		return 0, err
	}
	if len(params) != 2 {
		return 0, fmt.Errorf("lxservo: voltage response carried %d params, expected 2", len(params))
	}
	mv := binary.LittleEndian.Uint16(params)
	return float64(mv) / 1000, nil
}

// Probe asks a servo for its id, confirming it is alive on the bus
func (b *Bus) Probe(id int) error {
	params, err := b.sendRecv(byte(id), cmdIDRead)
	if err != nil {
		return err
	}
	if len(params) != 1 || int(params[0]) != id {
		return fmt.Errorf("lxservo: probe of servo %d answered %v", id, params)
	}
	return nil
}
