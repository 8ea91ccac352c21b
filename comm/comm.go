/*Package comm provides connection plumbing for talking to actuator hardware.

The servo bus is a single-master half-duplex link; exactly one request may be
in flight at a time.  The Pool type enforces this by owning the connection(s)
and handing them out one at a time.  Connection makers encapsulate how a link
is (re)established, with retry on open, so that consumers never deal with
flaky device enumeration themselves.
*/
package comm

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// SerialConnMaker returns a maker which opens the given serial config,
// retrying with exponential backoff.  USB serial adapters frequently
// fail the first open after enumeration.
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var port *serial.Port
		op := func() error {
			var err error
			port, err = serial.OpenPort(conf)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, fmt.Errorf("unable to open %s: %w", conf.Name, err)
		}
		return port, nil
	}
}

// BackingOffTCPConnMaker returns a maker which dials addr with retry,
// for serial-over-ethernet bridges.  Connection-refused errors are
// terminal; everything else is retried up to a few seconds.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = net.DialTimeout("tcp", addr, timeout)
			if err != nil && strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, fmt.Errorf("connection failed to %s: %w", addr, err)
		}
		return conn, nil
	}
}

// deadliner is a connection which supports deadlines, e.g. net.Conn
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

type timeoutRW struct {
	rw      io.ReadWriter
	d       deadliner
	timeout time.Duration
}

func (t timeoutRW) Read(p []byte) (int, error) {
	if t.d != nil {
		t.d.SetReadDeadline(time.Now().Add(t.timeout))
	}
	return t.rw.Read(p)
}

func (t timeoutRW) Write(p []byte) (int, error) {
	if t.d != nil {
		t.d.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	return t.rw.Write(p)
}

// NewTimeout wraps rw so that each Read or Write carries a deadline, when the
// underlying connection supports deadlines.  Serial ports configure their
// timeout at open and pass through unchanged.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) io.ReadWriter {
	d, ok := rw.(deadliner)
	if !ok {
		return rw
	}
	return timeoutRW{rw: rw, d: d, timeout: timeout}
}
