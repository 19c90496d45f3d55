package rl78

import (
	"encoding/binary"
	"fmt"

	"github.com/charmbracelet/log"
)

// BlockSize is the flash erase/program granularity in bytes.
const BlockSize = 1024

// Baud Rate Set parameters. The bootloader is always commanded back to the
// line rate the host already runs, at the board's supply voltage.
const (
	baudSetting115200 = 0x00
	voltageSetting3V3 = 0x21
)

// modeTwoWireUART is the mode byte transmitted during the entry sequence.
const modeTwoWireUART = 0x00

// Client issues bootloader commands over a Transport.
type Client struct {
	t   *Transport
	log *log.Logger
}

func NewClient(t *Transport, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{t: t, log: logger}
}

// statusExchange sends a command frame and checks the status byte of the
// single reply frame. Commands that treat specific non-ACK codes as data
// bypass this.
func (c *Client) statusExchange(op string, cmd byte, info []byte) ([]byte, error) {
	reply, err := c.t.Exchange(BuildCommand(cmd, info))
	if err != nil {
		return nil, err
	}
	if st := Status(reply[2]); st != StatusNormalAck {
		return nil, &CommandError{Op: op, Status: st}
	}
	return reply, nil
}

// BaudInfo is the informational tail of the Baud Rate Set status frame.
type BaudInfo struct {
	FrequencyMHz int
	WideVoltage  bool
}

// BaudRateSet commands 115200 baud at 3.3V and reports the device's
// operating frequency and programming mode.
func (c *Client) BaudRateSet() (BaudInfo, error) {
	reply, err := c.statusExchange("baud rate set", CmdBaudRateSet,
		[]byte{baudSetting115200, voltageSetting3V3})
	if err != nil {
		return BaudInfo{}, err
	}
	if len(reply) < 7 {
		return BaudInfo{}, fmt.Errorf("baud rate set: short status frame (%d bytes)", len(reply))
	}
	info := BaudInfo{
		FrequencyMHz: int(reply[3]),
		WideVoltage:  reply[4] != 0,
	}
	c.log.Debug("baud rate set", "frequency", info.FrequencyMHz, "wide-voltage", info.WideVoltage)
	return info, nil
}

// Reset performs a protocol-level reset after baud negotiation. No hardware
// line is touched.
func (c *Client) Reset() error {
	_, err := c.statusExchange("reset", CmdReset, nil)
	return err
}

// Signature is the identification record from the Silicon Signature command.
type Signature struct {
	DeviceCode    [3]byte
	DeviceName    string
	CodeFlashLast uint32
	DataFlashLast uint32
	Firmware      [3]byte
}

// FirmwareVersion renders the three version digits the way the bootloader
// intends them: major, then two minor digits.
func (s Signature) FirmwareVersion() string {
	return fmt.Sprintf("%d.%d%d", s.Firmware[0], s.Firmware[1], s.Firmware[2])
}

// SiliconSignature reads the device identification. The command replies with
// a status frame followed by a data frame carrying the record.
func (c *Client) SiliconSignature() (Signature, error) {
	if _, err := c.statusExchange("silicon signature", CmdSiliconSignature, nil); err != nil {
		return Signature{}, err
	}
	data, err := c.t.Receive()
	if err != nil {
		return Signature{}, err
	}
	if len(data) < 26 {
		return Signature{}, fmt.Errorf("silicon signature: short data frame (%d bytes)", len(data))
	}
	var sig Signature
	copy(sig.DeviceCode[:], data[2:5])
	sig.DeviceName = string(data[5:15])
	sig.CodeFlashLast = addr24(data[15:18])
	sig.DataFlashLast = addr24(data[18:21])
	copy(sig.Firmware[:], data[21:24])
	c.log.Debug("silicon signature", "device", sig.DeviceName, "firmware", sig.FirmwareVersion())
	return sig, nil
}

// blockRange encodes the inclusive address range covered by a run of blocks.
func blockRange(firstBlock, blocks int) (start, end uint32) {
	start = uint32(firstBlock) * BlockSize
	end = uint32(firstBlock+blocks)*BlockSize - 1
	return start, end
}

// BlankCheck asks whether a run of blocks is erased. It reports
// occupied=true when the device answers with the blank check error status;
// that status is a result here, not a failure.
func (c *Client) BlankCheck(firstBlock, blocks int) (occupied bool, err error) {
	start, end := blockRange(firstBlock, blocks)
	info := appendAddr24(nil, start)
	info = appendAddr24(info, end)
	info = append(info, 0x00) // specified block mode
	reply, err := c.t.Exchange(BuildCommand(CmdBlockBlankCheck, info))
	if err != nil {
		return false, err
	}
	switch st := Status(reply[2]); st {
	case StatusNormalAck:
		return false, nil
	case StatusIVerifyBlankError:
		return true, nil
	default:
		return false, &CommandError{Op: "block blank check", Status: st}
	}
}

// BlockErase erases a single 1024-byte block.
func (c *Client) BlockErase(block int) error {
	info := appendAddr24(nil, uint32(block)*BlockSize)
	_, err := c.statusExchange("block erase", CmdBlockErase, info)
	return err
}

// Programming writes data into flash starting at firstBlock. data must be a
// whole number of blocks; the device acknowledges every 256-byte data frame
// and then confirms the whole write with one final status frame.
func (c *Client) Programming(firstBlock int, data []byte) error {
	if err := c.streamBlocks("programming", CmdProgramming, firstBlock, data, false); err != nil {
		return err
	}
	final, err := c.t.Receive()
	if err != nil {
		return err
	}
	if st := Status(final[2]); st != StatusNormalAck {
		return &CommandError{Op: "programming", Status: st}
	}
	return nil
}

// Verify compares data against flash starting at firstBlock. The wire
// exchange mirrors Programming, but each data frame's status reply carries a
// second status byte that must also acknowledge, and there is no trailing
// confirmation frame.
func (c *Client) Verify(firstBlock int, data []byte) error {
	return c.streamBlocks("verify", CmdVerify, firstBlock, data, true)
}

func (c *Client) streamBlocks(op string, cmd byte, firstBlock int, data []byte, innerStatus bool) error {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return fmt.Errorf("%s: data length %d is not a whole number of blocks", op, len(data))
	}
	start, end := blockRange(firstBlock, len(data)/BlockSize)
	info := appendAddr24(nil, start)
	info = appendAddr24(info, end)
	if _, err := c.statusExchange(op, cmd, info); err != nil {
		return err
	}
	for offset := 0; offset < len(data); offset += DataPayloadSize {
		last := offset+DataPayloadSize >= len(data)
		reply, err := c.t.Exchange(BuildData(data[offset:offset+DataPayloadSize], last))
		if err != nil {
			return err
		}
		if st := Status(reply[2]); st != StatusNormalAck {
			return &CommandError{Op: op, Status: st}
		}
		if innerStatus {
			if len(reply) < 6 {
				return fmt.Errorf("%s: short status frame (%d bytes)", op, len(reply))
			}
			if st := Status(reply[3]); st != StatusNormalAck {
				return &CommandError{Op: op, Status: st}
			}
		}
	}
	return nil
}

// Checksum asks the device to sum a run of blocks and returns the 16-bit
// result from the trailing data frame.
func (c *Client) Checksum(firstBlock, blocks int) (uint16, error) {
	start, end := blockRange(firstBlock, blocks)
	info := appendAddr24(nil, start)
	info = appendAddr24(info, end)
	if _, err := c.statusExchange("checksum", CmdChecksum, info); err != nil {
		return 0, err
	}
	data, err := c.t.Receive()
	if err != nil {
		return 0, err
	}
	if len(data) < 6 {
		return 0, fmt.Errorf("checksum: short data frame (%d bytes)", len(data))
	}
	return binary.LittleEndian.Uint16(data[2:4]), nil
}
