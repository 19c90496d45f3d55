package rl78

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/kobolt/kurumi-tools/serial"
)

// Config is everything the session needs; there is no process-wide state.
type Config struct {
	Device      string
	ImageFile   string
	VerifyOnly  bool
	BlockOffset int
	Trace       bool
	Quiet       bool

	// Out receives the protocol's stdout rendering and the traffic
	// trace. Defaults to os.Stdout.
	Out io.Writer
	// Logger receives diagnostics. Defaults to the package default.
	Logger *log.Logger
}

// sessionState tracks the programming session. Transitions only move
// forward; failed is reachable from any state before closed, and closed is
// terminal.
type sessionState int

const (
	stateIdle sessionState = iota
	stateOpened
	stateEnteredBootloader
	stateBaudSet
	stateResetOK
	stateSignatureRead
	stateStreaming
	stateChecksummed
	stateFailed
	stateClosed
)

// Session drives one complete programming or verification pass. It owns the
// serial port exclusively for its whole lifetime.
type Session struct {
	cfg   Config
	out   io.Writer
	log   *log.Logger
	state sessionState
}

func NewSession(cfg Config) *Session {
	if cfg.Quiet {
		cfg.Trace = false
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{cfg: cfg, out: out, log: logger, state: stateIdle}
}

func (s *Session) advance(next sessionState) {
	if next > s.state {
		s.state = next
	}
}

func (s *Session) fail() {
	if s.state < stateFailed {
		s.state = stateFailed
	}
}

// printf renders a detail line unless the session is quiet.
func (s *Session) printf(format string, args ...any) {
	if s.cfg.Quiet {
		return
	}
	fmt.Fprintf(s.out, format, args...)
}

// Run opens the device, brings the target into bootloader mode, streams the
// image, and releases the target again. The release ritual runs regardless
// of how the session went, so the part is always left out of reset.
func (s *Session) Run() error {
	port, err := serial.Open(s.cfg.Device, nil)
	if err != nil {
		s.fail()
		return err
	}
	defer func() {
		port.Close()
		s.state = stateClosed
	}()

	boot := &Bootstrap{Port: port}
	if err := port.Configure8N2(); err != nil {
		s.fail()
		boot.ReleaseTarget()
		return err
	}
	s.advance(stateOpened)

	if err := boot.EnterBootloader(); err != nil {
		s.fail()
		boot.ReleaseTarget()
		return err
	}
	s.advance(stateEnteredBootloader)

	var trace Tracer
	if s.cfg.Trace {
		trace = NewHexTracer(s.out)
	}
	client := NewClient(NewTransport(port, trace), s.log)

	err = s.execute(client)
	if err != nil {
		s.fail()
	}
	if rerr := boot.ReleaseTarget(); rerr != nil {
		s.fail()
		if err == nil {
			err = rerr
		}
	}
	return err
}

// execute runs the command pipeline against an already-entered bootloader.
func (s *Session) execute(c *Client) error {
	baud, err := c.BaudRateSet()
	if err != nil {
		return err
	}
	s.advance(stateBaudSet)
	mode := "Full-speed"
	if baud.WideVoltage {
		mode = "Wide-voltage"
	}
	s.printf("Frequency: %d MHz\n", baud.FrequencyMHz)
	s.printf("Programming mode: %s\n", mode)

	if err := c.Reset(); err != nil {
		return err
	}
	s.advance(stateResetOK)

	sig, err := c.SiliconSignature()
	if err != nil {
		return err
	}
	s.advance(stateSignatureRead)
	s.printf("Device code: 0x%02x 0x%02x 0x%02x\n",
		sig.DeviceCode[0], sig.DeviceCode[1], sig.DeviceCode[2])
	s.printf("Device name: %s\n", sig.DeviceName)
	s.printf("Code flash ROM last address: 0x%06x\n", sig.CodeFlashLast)
	s.printf("Data flash ROM last address: 0x%06x\n", sig.DataFlashLast)
	s.printf("Firmware version: %s\n", sig.FirmwareVersion())

	image, err := os.Open(s.cfg.ImageFile)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer image.Close()

	blocks, local, err := s.stream(c, image)
	if err != nil {
		return err
	}

	remote, err := c.Checksum(s.cfg.BlockOffset, blocks)
	if err != nil {
		return err
	}
	s.advance(stateChecksummed)
	s.printf("Checksum Local : 0x%04x\n", local)
	s.printf("Checksum Remote: 0x%04x\n", remote)
	return nil
}

// stream pushes the image through the per-block pipeline and maintains the
// running local checksum over the padded bytes.
func (s *Session) stream(c *Client, image io.Reader) (blocks int, local uint16, err error) {
	acc := 0
	buf := make([]byte, BlockSize)
	blockNo := s.cfg.BlockOffset
	for {
		n, rerr := io.ReadFull(image, buf)
		if n == 0 {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF || rerr == nil {
				break
			}
			return 0, 0, fmt.Errorf("read image: %w", rerr)
		}
		if rerr != nil && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return 0, 0, fmt.Errorf("read image: %w", rerr)
		}
		s.advance(stateStreaming)

		padBlock(buf, n)
		for _, b := range buf {
			acc -= int(b)
		}

		verb := "Programming"
		if s.cfg.VerifyOnly {
			verb = "Verifying"
		}
		s.printf("%s Block #%d (0x%06x -> 0x%06x)\n",
			verb, blockNo, blockNo*BlockSize, (blockNo+1)*BlockSize-1)

		if !s.cfg.VerifyOnly {
			occupied, err := c.BlankCheck(blockNo, 1)
			if err != nil {
				return 0, 0, err
			}
			if occupied {
				if err := c.BlockErase(blockNo); err != nil {
					return 0, 0, err
				}
			}
			if err := c.Programming(blockNo, buf); err != nil {
				return 0, 0, err
			}
		}
		if err := c.Verify(blockNo, buf); err != nil {
			return 0, 0, err
		}

		blockNo++
		blocks++
		if rerr != nil {
			break
		}
	}
	return blocks, uint16(acc), nil
}

// padBlock fills the tail of a short final block with erased-flash bytes.
func padBlock(buf []byte, n int) {
	for i := n; i < len(buf); i++ {
		buf[i] = 0xff
	}
}
