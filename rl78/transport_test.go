package rl78

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobolt/kurumi-tools/serial"
)

// scriptPort plays back a canned inbound byte stream and records everything
// written to it. With stutter set, every other read reports no data, the way
// a real nonblocking TTY does.
type scriptPort struct {
	in      []byte
	pos     int
	wrote   bytes.Buffer
	stutter bool
	tick    bool
}

func (p *scriptPort) queue(frames ...[]byte) {
	for _, f := range frames {
		p.in = append(p.in, f...)
	}
}

func (p *scriptPort) Write(data []byte) (int, error) {
	p.wrote.Write(data)
	return len(data), nil
}

func (p *scriptPort) ReadByte() (byte, error) {
	if p.stutter {
		p.tick = !p.tick
		if p.tick {
			return 0, serial.ErrNoData
		}
	}
	if p.pos >= len(p.in) {
		return 0, errors.New("script exhausted")
	}
	b := p.in[p.pos]
	p.pos++
	return b, nil
}

// sentFrames splits the recorded outbound stream back into frames.
func sentFrames(t require.TestingT, p *scriptPort) [][]byte {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	var frames [][]byte
	var cur []byte
	for _, b := range p.wrote.Bytes() {
		cur = append(cur, b)
		if IsComplete(cur) {
			frames = append(frames, cur)
			cur = nil
		}
	}
	require.Empty(t, cur, "trailing partial frame in outbound stream")
	return frames
}

func TestExchange(t *testing.T) {
	var port = &scriptPort{stutter: true}
	var reply = BuildCommand(byte(StatusNormalAck), nil)
	port.queue(reply)

	var req = BuildCommand(CmdReset, nil)
	got, err := NewTransport(port, nil).Exchange(req)

	require.NoError(t, err)
	assert.Equal(t, reply, got)
	assert.Equal(t, req, port.wrote.Bytes())
}

func TestReceiveChecksumMismatch(t *testing.T) {
	var port = &scriptPort{}
	port.queue([]byte{0x01, 0x03, 0x9a, 0x00, 0x21, 0x43, 0x03})

	_, err := NewTransport(port, nil).Receive()

	assert.ErrorIs(t, err, ErrFrameChecksum)
}

func TestReceiveReadError(t *testing.T) {
	var port = &scriptPort{} // empty script: hard error on first read

	_, err := NewTransport(port, nil).Receive()

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFrameChecksum)
}

func TestTransportTracing(t *testing.T) {
	var trace bytes.Buffer
	var port = &scriptPort{}
	port.queue(BuildCommand(byte(StatusNormalAck), nil))

	_, err := NewTransport(port, NewHexTracer(&trace)).Exchange(BuildCommand(CmdReset, nil))

	require.NoError(t, err)
	assert.Equal(t, ">>> 01 01 00 ff 03 \n<<< 01 01 06 f9 03 \n", trace.String())
}

func TestHexTracerFormat(t *testing.T) {
	var buf bytes.Buffer
	var tracer = NewHexTracer(&buf)

	tracer.Sent([]byte{0x01, 0x03, 0x9a, 0x00, 0x21, 0x42, 0x03})
	tracer.Received([]byte{0x01, 0x01, 0x06, 0xf9, 0x03})

	assert.Equal(t, ">>> 01 03 9a 00 21 42 03 \n<<< 01 01 06 f9 03 \n", buf.String())
}
