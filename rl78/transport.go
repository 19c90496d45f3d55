package rl78

import (
	"errors"
	"fmt"
	"time"

	"github.com/kobolt/kurumi-tools/serial"
)

// Port is the byte-level device the transport drives. *serial.Port satisfies
// it; tests substitute scripted implementations.
type Port interface {
	Write(data []byte) (int, error)
	ReadByte() (byte, error)
}

// Tracer observes completed frames in both directions.
type Tracer interface {
	Sent(frame []byte)
	Received(frame []byte)
}

// pollInterval is the back-off between empty reads while waiting for the
// device. Load-bearing on real hardware.
const pollInterval = 10 * time.Microsecond

// Transport pairs one request frame with one reply frame over a Port.
type Transport struct {
	port  Port
	trace Tracer
}

func NewTransport(port Port, trace Tracer) *Transport {
	return &Transport{port: port, trace: trace}
}

// Exchange writes a request frame and reads back a single reply frame.
func (t *Transport) Exchange(req []byte) ([]byte, error) {
	if err := t.send(req); err != nil {
		return nil, err
	}
	return t.Receive()
}

func (t *Transport) send(frame []byte) error {
	if t.trace != nil {
		t.trace.Sent(frame)
	}
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("frame send: %w", err)
	}
	return nil
}

// Receive reads bytes one at a time until the length field says the frame is
// whole, then validates its checksum. Used on its own for commands that
// reply with more than one frame.
func (t *Transport) Receive() ([]byte, error) {
	frame := make([]byte, 0, MaxFrameSize)
	for {
		b, err := t.port.ReadByte()
		if err != nil {
			if errors.Is(err, serial.ErrNoData) {
				time.Sleep(pollInterval)
				continue
			}
			return nil, fmt.Errorf("frame recv: %w", err)
		}
		if len(frame) == MaxFrameSize {
			return nil, fmt.Errorf("frame recv: %w", ErrFrameOverflow)
		}
		frame = append(frame, b)
		if IsComplete(frame) {
			break
		}
	}
	if t.trace != nil {
		t.trace.Received(frame)
	}
	if err := Validate(frame); err != nil {
		return nil, fmt.Errorf("frame recv: %w", err)
	}
	return frame, nil
}
