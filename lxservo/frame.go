package lxservo

import (
	"errors"
	"fmt"
	"io"
)

// frame layout: 0x55 0x55 <id> <len> <cmd> <params...> <checksum>
// len counts cmd, params and checksum.  checksum is the complement of the
// byte sum of id through the last param.
const header = 0x55

// bus commands
const (
	cmdMoveTimeWrite = 1
	cmdMoveTimeRead  = 2
	cmdMoveStop      = 12
	cmdIDRead        = 14
	cmdTempRead      = 26
	cmdVinRead       = 27
	cmdPosRead       = 28
	cmdLoadWrite     = 31
)

const (
	// ticksFull and degFull relate raw position ticks to degrees; the servo
	// reports 0..1000 over a 240 degree travel
	ticksFull = 1000.0
	degFull   = 240.0

	// maxParams bounds a response's parameter count; anything longer is a
	// framing error
	maxParams = 7
)

var (
	// ErrBadChecksum indicates a response whose checksum does not match
	ErrBadChecksum = errors.New("lxservo: checksum mismatch")

	// ErrNoHeader indicates the header bytes never appeared in the stream
	ErrNoHeader = errors.New("lxservo: frame header not found")
)

func checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return ^sum
}

// encodeFrame builds a command frame for the wire
func encodeFrame(id, cmd byte, params ...byte) []byte {
	length := byte(len(params) + 3)
	buf := make([]byte, 0, len(params)+6)
	buf = append(buf, header, header, id, length, cmd)
	buf = append(buf, params...)
	buf = append(buf, checksum(buf[2:]))
	return buf
}

// readFrame scans r for the next well-formed frame and returns its id,
// command and params.  Garbage before the header is discarded, the way a
// half-duplex bus with echo requires.
func readFrame(r io.Reader) (id, cmd byte, params []byte, err error) {
	one := make([]byte, 1)
	matched := 0
	// cap the scan so a babbling line cannot wedge us
	for scanned := 0; scanned < 64; scanned++ {
		if _, err = io.ReadFull(r, one); err != nil {
			return 0, 0, nil, err
		}
		if one[0] == header {
			matched++
			if matched == 2 {
				break
			}
		} else {
			matched = 0
		}
	}
	if matched != 2 {
		return 0, 0, nil, ErrNoHeader
	}
	hdr := make([]byte, 2) // id, len
	if _, err = io.ReadFull(r, hdr); err != nil {
		return 0, 0, nil, err
	}
	id = hdr[0]
	length := hdr[1]
	if length < 3 || length > maxParams+3 {
		return 0, 0, nil, fmt.Errorf("lxservo: implausible frame length %d", length)
	}
	rest := make([]byte, length-1) // cmd, params, checksum
	if _, err = io.ReadFull(r, rest); err != nil {
		return 0, 0, nil, err
	}
	body := append([]byte{id, length}, rest[:len(rest)-1]...)
	if checksum(body) != rest[len(rest)-1] {
		return 0, 0, nil, ErrBadChecksum
	}
	cmd = rest[0]
	params = rest[1 : len(rest)-1]
	return id, cmd, params, nil
}

// angleToTicks converts degrees to raw position ticks, clamped to the
// servo's travel
func angleToTicks(angle float64) uint16 {
	if angle < 0 {
		angle = 0
	}
	if angle > degFull {
		angle = degFull
	}
	return uint16(angle/degFull*ticksFull + 0.5)
}

// ticksToAngle converts raw position ticks to degrees.  Ticks are signed;
// a servo pushed past its stop reports slightly negative values.
func ticksToAngle(ticks int16) float64 {
	return float64(ticks) / ticksFull * degFull
}
