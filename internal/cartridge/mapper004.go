package cartridge

// Mapper004 implements MMC3 (mapper 4): eight bank-select registers
// (two 2 KiB + four 1 KiB CHR banks, two switchable 8 KiB PRG banks)
// loaded through a bank-select/bank-data register pair, plus a
// scanline IRQ counter clocked by PPU address line A12 rising edges
// rather than by scanline count - ObserveAddress is called on every
// PPU pattern-table ($0000-$1FFF) access and watches bit 0x1000 of the address for a
// 0-to-1 transition, matching how the real ASIC snoops the PPU
// address bus.
type Mapper004 struct {
	cart *Cartridge

	bankSelect uint8
	banks      [8]uint8

	mirror     uint8 // 0=vertical, 1=horizontal (bit0 of 0xA000 register)
	prgRAMProt uint8

	irqLatch   uint8
	irqCounter uint8
	irqReload  bool
	irqEnabled bool
	irqPending bool

	lastA12 bool

	prgBanks uint8 // 8 KiB PRG banks
	chrBanks uint8 // 1 KiB CHR banks
}

func newMMC3(cart *Cartridge) Mapper {
	return &Mapper004{
		cart:     cart,
		prgBanks: uint8(len(cart.prgROM) / 0x2000),
		chrBanks: uint8(len(cart.chrROM) / 0x0400),
	}
}

func (m *Mapper004) Kind() MapperKind { return KindMMC3 }

func (m *Mapper004) ReadPRG(address uint16) uint8 {
	switch {
	case address >= 0x6000 && address < 0x8000:
		return m.cart.sram[address-0x6000]
	case address >= 0x8000:
		return m.cart.prgROM[m.prgOffset(address)]
	}
	return 0
}

func (m *Mapper004) prgOffset(address uint16) uint32 {
	banks := uint32(m.prgBanks)
	if banks == 0 {
		banks = 1
	}
	slot := uint32(address-0x8000) / 0x2000
	within := uint32(address-0x8000) % 0x2000

	r6 := uint32(m.banks[6]) % banks
	r7 := uint32(m.banks[7]) % banks
	secondLast := (banks - 2) % banks
	last := (banks - 1) % banks

	var bank uint32
	if m.bankSelect&0x40 == 0 {
		// mode 0: 0x8000=R6, 0xA000=R7, 0xC000=fixed(-2), 0xE000=fixed(-1)
		switch slot {
		case 0:
			bank = r6
		case 1:
			bank = r7
		case 2:
			bank = secondLast
		default:
			bank = last
		}
	} else {
		// mode 1: 0x8000=fixed(-2), 0xA000=R7, 0xC000=R6, 0xE000=fixed(-1)
		switch slot {
		case 0:
			bank = secondLast
		case 1:
			bank = r7
		case 2:
			bank = r6
		default:
			bank = last
		}
	}
	return bank*0x2000 + within
}

func (m *Mapper004) WritePRG(address uint16, value uint8) {
	switch {
	case address >= 0x6000 && address < 0x8000:
		m.cart.sram[address-0x6000] = value
	case address >= 0x8000 && address < 0xA000:
		if address&1 == 0 {
			m.bankSelect = value
		} else {
			m.banks[m.bankSelect&0x07] = value
		}
	case address >= 0xA000 && address < 0xC000:
		if address&1 == 0 {
			m.mirror = value & 0x01
		} else {
			m.prgRAMProt = value
		}
	case address >= 0xC000 && address < 0xE000:
		if address&1 == 0 {
			m.irqLatch = value
		} else {
			m.irqCounter = 0
			m.irqReload = true
		}
	default: // 0xE000-0xFFFF
		if address&1 == 0 {
			m.irqEnabled = false
			m.irqPending = false
		} else {
			m.irqEnabled = true
		}
	}
}

func (m *Mapper004) ReadCHR(address uint16) uint8 {
	if address >= 0x2000 {
		return 0
	}
	offset := m.chrOffset(address)
	if int(offset) < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

func (m *Mapper004) DebugReadCHR(address uint16) uint8 { return m.ReadCHR(address) }

func (m *Mapper004) WriteCHR(address uint16, value uint8) {
	if address >= 0x2000 || !m.cart.hasCHRRAM {
		return
	}
	offset := m.chrOffset(address)
	if int(offset) < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

func (m *Mapper004) chrOffset(address uint16) uint32 {
	banks := uint32(m.chrBanks)
	if banks == 0 {
		banks = 1
	}
	inverted := m.bankSelect&0x80 != 0

	region := address / 0x0400 // which 1 KiB slot, 0..7
	if inverted {
		region ^= 0x04
	}

	var bank uint32
	switch region {
	case 0:
		bank = uint32(m.banks[0]&0xFE) % banks
	case 1:
		bank = (uint32(m.banks[0]&0xFE) + 1) % banks
	case 2:
		bank = uint32(m.banks[1]&0xFE) % banks
	case 3:
		bank = (uint32(m.banks[1]&0xFE) + 1) % banks
	case 4:
		bank = uint32(m.banks[2]) % banks
	case 5:
		bank = uint32(m.banks[3]) % banks
	case 6:
		bank = uint32(m.banks[4]) % banks
	default:
		bank = uint32(m.banks[5]) % banks
	}
	return bank*0x0400 + uint32(address%0x0400)
}

func (m *Mapper004) Mirroring() MirrorMode {
	if m.mirror == 0 {
		return MirrorVertical
	}
	return MirrorHorizontal
}

// ObserveAddress watches the PPU address bus for A12 (bit 0x1000)
// rising edges and clocks the scanline counter on each one, exactly
// as the MMC3 ASIC does - it has no notion of scanlines itself.
func (m *Mapper004) ObserveAddress(address uint16) {
	a12 := address&0x1000 != 0
	if a12 && !m.lastA12 {
		m.clockIRQCounter()
	}
	m.lastA12 = a12
}

func (m *Mapper004) clockIRQCounter() {
	if m.irqCounter == 0 || m.irqReload {
		m.irqCounter = m.irqLatch
		m.irqReload = false
	} else {
		m.irqCounter--
	}
	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
	}
}

// IRQPending reports the latched IRQ line state. Real MMC3 IRQ lines
// stay asserted until acknowledged by a write to 0xE000; clearing it
// on every read would let a disabled-interrupt window silently drop
// the request.
func (m *Mapper004) IRQPending() bool { return m.irqPending }

func (m *Mapper004) AdvanceCPUCycles(uint64) {}

// ExportState reports MMC3's register state for a savestate: the eight
// bank registers, the mirroring/PRG-RAM-protect latches, and the full
// scanline IRQ counter state.
func (m *Mapper004) ExportState() []uint8 {
	out := make([]uint8, 0, 2+8+7)
	out = append(out, m.bankSelect)
	out = append(out, m.banks[:]...)
	out = append(out, m.mirror, m.prgRAMProt, m.irqLatch, m.irqCounter)
	out = append(out, boolByte(m.irqReload), boolByte(m.irqEnabled), boolByte(m.irqPending), boolByte(m.lastA12))
	return out
}

// ImportState restores MMC3's register state from a savestate.
func (m *Mapper004) ImportState(data []uint8) {
	if len(data) < 1+8+8 {
		return
	}
	m.bankSelect = data[0]
	copy(m.banks[:], data[1:9])
	m.mirror = data[9]
	m.prgRAMProt = data[10]
	m.irqLatch = data[11]
	m.irqCounter = data[12]
	m.irqReload = data[13] != 0
	m.irqEnabled = data[14] != 0
	m.irqPending = data[15] != 0
	m.lastA12 = data[16] != 0
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
