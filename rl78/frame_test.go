package rl78

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChecksumLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var info = rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "info")

		var sum = 0
		for _, b := range info {
			sum += int(b)
		}
		var want = ((-(len(info) % 256) - sum) % 256 + 256) % 256

		assert.Equal(t, byte(want), checksum(info))
	})
}

func TestBuildCommandRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var cmd = rapid.Byte().Draw(t, "cmd")
		var info = rapid.SliceOfN(rapid.Byte(), 0, 255).Draw(t, "info")

		var frame = BuildCommand(cmd, info)

		require.Len(t, frame, len(info)+5)
		for k := 0; k < len(frame); k++ {
			assert.False(t, IsComplete(frame[:k]), "complete at prefix length %d", k)
		}
		assert.True(t, IsComplete(frame))
		assert.NoError(t, Validate(frame))

		assert.Equal(t, byte(headerCommand), frame[0])
		assert.Equal(t, cmd, frame[2])
		assert.True(t, bytes.Equal(info, frame[3:3+len(info)]))
		assert.Equal(t, byte(footerEnd), frame[len(frame)-1])
	})
}

func TestBuildData(t *testing.T) {
	var payload = make([]byte, DataPayloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	var more = BuildData(payload, false)
	var last = BuildData(payload, true)

	require.Len(t, more, MaxFrameSize)
	assert.Equal(t, byte(headerData), more[0])
	assert.Equal(t, byte(0x00), more[1], "256-byte payload encodes as length 0x00")
	assert.Equal(t, byte(footerMore), more[len(more)-1])
	assert.Equal(t, byte(footerEnd), last[len(last)-1])

	for k := 0; k < len(more); k++ {
		assert.False(t, IsComplete(more[:k]))
	}
	assert.True(t, IsComplete(more))
	assert.NoError(t, Validate(more))
	assert.NoError(t, Validate(last))
}

func TestFrameParserLiteral(t *testing.T) {
	// The Baud Rate Set request: 0x42 = (-3 - 0x9a - 0x00 - 0x21) mod 256.
	var frame = []byte{0x01, 0x03, 0x9a, 0x00, 0x21, 0x42, 0x03}

	var buf []byte
	for i, b := range frame {
		buf = append(buf, b)
		if i < len(frame)-1 {
			assert.False(t, IsComplete(buf), "complete after %d bytes", i+1)
		} else {
			assert.True(t, IsComplete(buf))
		}
	}
	assert.NoError(t, Validate(buf))
}

func TestValidateBadChecksum(t *testing.T) {
	var frame = []byte{0x01, 0x03, 0x9a, 0x00, 0x21, 0x43, 0x03}

	assert.ErrorIs(t, Validate(frame), ErrFrameChecksum)
}

func TestAddr24RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var addr = rapid.Uint32Range(0, 1<<24-1).Draw(t, "addr")

		assert.Equal(t, addr, addr24(appendAddr24(nil, addr)))
	})
}
