package rl78

import "time"

// ControlPort is the modem-control surface the entry and shutdown rituals
// drive. DTR is wired to the target's RESET line; BREAK holds the target's
// RX low.
type ControlPort interface {
	SetDTR(on bool) error
	SetBreak(on bool) error
	FlushIO() error
	Write(data []byte) (int, error)
}

// settleDelay paces the line rituals. Approximate, but the ordering around
// it is load-bearing.
const settleDelay = time.Millisecond

// Bootstrap runs the line rituals that move the target in and out of
// bootloader mode. Sleep is replaceable so tests can record the ritual.
type Bootstrap struct {
	Port  ControlPort
	Sleep func(time.Duration)
}

func (b *Bootstrap) sleep() {
	if b.Sleep != nil {
		b.Sleep(settleDelay)
		return
	}
	time.Sleep(settleDelay)
}

// EnterBootloader forces the target into two-wire UART bootloader mode:
// reset is asserted with BREAK holding RX low, reset is released, BREAK is
// dropped, and the mode byte is transmitted.
func (b *Bootstrap) EnterBootloader() error {
	if err := b.Port.SetDTR(true); err != nil {
		return err
	}
	if err := b.Port.SetBreak(true); err != nil {
		return err
	}
	if err := b.Port.FlushIO(); err != nil {
		return err
	}
	if err := b.Port.SetDTR(false); err != nil {
		return err
	}
	b.sleep()
	if err := b.Port.SetBreak(false); err != nil {
		return err
	}
	if err := b.Port.FlushIO(); err != nil {
		return err
	}
	b.sleep()
	if _, err := b.Port.Write([]byte{modeTwoWireUART}); err != nil {
		return err
	}
	b.sleep()
	return b.Port.FlushIO()
}

// ReleaseTarget holds the part in reset long enough to stop firmware
// execution, then releases it to run the freshly written image.
func (b *Bootstrap) ReleaseTarget() error {
	if err := b.Port.SetDTR(true); err != nil {
		return err
	}
	b.sleep()
	return b.Port.SetDTR(false)
}
