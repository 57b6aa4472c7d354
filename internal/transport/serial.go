package transport

import (
	"context"
	"sync"

	serial "github.com/daedaluz/goserial"
)

const (
	serialBaud      = serial.B115200
	serialReadChunk = 4096
)

// SerialTransport is a local serial port, 115200 8-N-1, with no
// write-buffer limit and a drain that resolves via the real tcdrain
// syscall, per spec.md §4.1.
type SerialTransport struct {
	port *serial.Port

	closeOnce sync.Once
	closed    chan struct{}

	hooks Hooks
}

// OpenSerial opens path at 115200 baud, 8-N-1, raw mode, and starts
// the read pump.
func OpenSerial(path string, hooks Hooks) (*SerialTransport, error) {
	port, err := serial.Open(path, serial.NewOptions())
	if err != nil {
		return nil, err
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(serialBaud)
	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}

	st := &SerialTransport{
		port:   port,
		closed: make(chan struct{}),
		hooks:  hooks,
	}
	go st.readLoop()

	return st, nil
}

func (st *SerialTransport) Write(p []byte) error {
	select {
	case <-st.closed:
		return ErrConnectionLost
	default:
	}
	_, err := st.port.Write(p)
	if err != nil {
		st.failClose(err)
		return ErrConnectionLost
	}
	return nil
}

// Drain resolves immediately via the port's real tcdrain, per
// spec.md §4.1: the serial link has no software write-buffer limit.
func (st *SerialTransport) Drain(ctx context.Context) error {
	select {
	case <-st.closed:
		return ErrConnectionLost
	default:
	}
	if err := st.port.Drain(); err != nil {
		return err
	}
	return nil
}

func (st *SerialTransport) Close() error {
	st.closeOnce.Do(func() {
		close(st.closed)
		_ = st.port.Close()
		if st.hooks.OnClosed != nil {
			st.hooks.OnClosed(nil)
		}
	})
	return nil
}

func (st *SerialTransport) failClose(err error) {
	st.closeOnce.Do(func() {
		close(st.closed)
		_ = st.port.Close()
		if st.hooks.OnClosed != nil {
			st.hooks.OnClosed(err)
		}
	})
}

func (st *SerialTransport) readLoop() {
	buf := make([]byte, serialReadChunk)
	for {
		n, err := st.port.Read(buf)
		if n > 0 && st.hooks.OnBytes != nil {
			cp := append([]byte(nil), buf[:n]...)
			st.hooks.OnBytes(cp)
		}
		if err != nil {
			st.failClose(err)
			return
		}
	}
}
