package cpu

// Status is the packed 6502 processor status register: carry, zero,
// interrupt-disable, decimal, break, overflow and negative flags.
//
// B is not a physical flip-flop on real hardware - PHP/BRK always push it
// as 1 and hardware interrupts always push it as 0, regardless of any
// prior value. Callers that care about the exact pushed byte (interrupt
// dispatch, PHP) set B explicitly before calling ToByte rather than
// relying on whatever FromByte last restored.
type Status struct {
	C bool
	Z bool
	I bool
	D bool
	B bool
	V bool
	N bool
}

// NewStatus returns the power-up status: I set, everything else clear.
func NewStatus() Status {
	return Status{I: true}
}

// ToByte packs the flags into a single byte. Bit 5 is unused on real
// hardware and always reads back as 1.
func (s Status) ToByte() uint8 {
	b := uint8(0x20)
	if s.C {
		b |= 0x01
	}
	if s.Z {
		b |= 0x02
	}
	if s.I {
		b |= 0x04
	}
	if s.D {
		b |= 0x08
	}
	if s.B {
		b |= 0x10
	}
	if s.V {
		b |= 0x40
	}
	if s.N {
		b |= 0x80
	}
	return b
}

// FromByte unpacks all seven flags from a byte, e.g. one popped by PLP/RTI.
func (s *Status) FromByte(b uint8) {
	s.C = b&0x01 != 0
	s.Z = b&0x02 != 0
	s.I = b&0x04 != 0
	s.D = b&0x08 != 0
	s.B = b&0x10 != 0
	s.V = b&0x40 != 0
	s.N = b&0x80 != 0
}

// setZN sets Z and N from a result byte, the common tail of most opcodes.
func (s *Status) setZN(v uint8) {
	s.Z = v == 0
	s.N = v&0x80 != 0
}
