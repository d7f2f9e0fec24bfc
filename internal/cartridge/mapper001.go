package cartridge

// Mapper001 implements MMC1 (mapper 1): a serial shift-register
// interface that loads one bit per CPU write (LSB first) into one of
// four 5-bit internal registers (control, CHR bank 0, CHR bank 1, PRG
// bank), selected by address bits 13-14 once the fifth bit lands. A
// write with bit 7 set resets the shift register and forces the
// control register's PRG mode to "fix last bank at 0xC000", matching
// real MMC1 power-up/reset behaviour.
type Mapper001 struct {
	cart *Cartridge

	shift    uint8
	shiftLen uint8

	control uint8
	chrBank0 uint8
	chrBank1 uint8
	prgBank  uint8

	prgBanks uint8
	chrBanks uint8 // count of 4 KiB CHR banks

	// lastWriteCycle gates consecutive-cycle writes: real MMC1 ignores
	// a second register write on the cycle immediately following one,
	// since the CPU's RMW dummy-write would otherwise corrupt the
	// shift register.
	lastWriteCycle uint64
	cpuCycle       uint64
}

func newMMC1(cart *Cartridge) Mapper {
	chrBanks := uint8(len(cart.chrROM) / 0x1000)
	if chrBanks == 0 {
		chrBanks = 2
	}
	m := &Mapper001{
		cart:     cart,
		prgBanks: uint8(len(cart.prgROM) / 0x4000),
		chrBanks: chrBanks,
	}
	m.resetShift()
	return m
}

func (m *Mapper001) Kind() MapperKind { return KindMMC1 }

func (m *Mapper001) resetShift() {
	m.shift = 0
	m.shiftLen = 0
	m.control |= 0x0C
}

func (m *Mapper001) ReadPRG(address uint16) uint8 {
	switch {
	case address >= 0x6000 && address < 0x8000:
		return m.cart.sram[address-0x6000]
	case address >= 0x8000:
		return m.cart.prgROM[m.prgOffset(address)]
	}
	return 0
}

func (m *Mapper001) prgOffset(address uint16) uint32 {
	banks := m.prgBanks
	if banks == 0 {
		banks = 1
	}
	mode := (m.control >> 2) & 0x03
	switch mode {
	case 0, 1:
		bank := uint32(m.prgBank>>1) % uint32((banks+1)/2)
		return bank*0x8000 + uint32(address-0x8000)
	case 2:
		if address < 0xC000 {
			return uint32(address - 0x8000)
		}
		bank := uint32(m.prgBank%banks) * 0x4000
		return bank + uint32(address-0xC000)
	default: // 3: switch 0x8000, fix last bank at 0xC000
		if address >= 0xC000 {
			last := uint32(banks-1) * 0x4000
			return last + uint32(address-0xC000)
		}
		bank := uint32(m.prgBank%banks) * 0x4000
		return bank + uint32(address-0x8000)
	}
}

func (m *Mapper001) WritePRG(address uint16, value uint8) {
	if address >= 0x6000 && address < 0x8000 {
		m.cart.sram[address-0x6000] = value
		return
	}
	if address < 0x8000 {
		return
	}

	if value&0x80 != 0 {
		m.resetShift()
		return
	}

	// Consecutive-cycle writes are ignored; AdvanceCPUCycles keeps
	// cpuCycle current so this gate is meaningful for callers that
	// drive it (the console scheduler advances it every CPU cycle).
	if m.cpuCycle != 0 && m.cpuCycle == m.lastWriteCycle+1 {
		m.lastWriteCycle = m.cpuCycle
		return
	}
	m.lastWriteCycle = m.cpuCycle

	m.shift |= (value & 0x01) << m.shiftLen
	m.shiftLen++
	if m.shiftLen < 5 {
		return
	}

	target := (address >> 13) & 0x03
	data := m.shift
	switch target {
	case 0:
		m.control = data
	case 1:
		m.chrBank0 = data
	case 2:
		m.chrBank1 = data
	case 3:
		m.prgBank = data
	}
	m.shift = 0
	m.shiftLen = 0
}

func (m *Mapper001) ReadCHR(address uint16) uint8 {
	if address >= 0x2000 {
		return 0
	}
	if !m.cart.hasCHRRAM && len(m.cart.chrROM) == 0 {
		return 0
	}
	offset := m.chrOffset(address)
	if int(offset) < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

func (m *Mapper001) DebugReadCHR(address uint16) uint8 { return m.ReadCHR(address) }

func (m *Mapper001) WriteCHR(address uint16, value uint8) {
	if address >= 0x2000 || !m.cart.hasCHRRAM {
		return
	}
	offset := m.chrOffset(address)
	if int(offset) < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

func (m *Mapper001) chrOffset(address uint16) uint32 {
	banks := m.chrBanks
	if banks == 0 {
		banks = 1
	}
	if m.control&0x10 == 0 {
		// 8 KiB mode: chrBank0's upper bits select an 8 KiB page.
		bank := uint32(m.chrBank0>>1) % uint32((banks+1)/2)
		return bank*0x2000 + uint32(address)
	}
	// 4 KiB mode: independent banks for each half.
	if address < 0x1000 {
		return uint32(m.chrBank0%banks)*0x1000 + uint32(address)
	}
	return uint32(m.chrBank1%banks)*0x1000 + uint32(address-0x1000)
}

func (m *Mapper001) Mirroring() MirrorMode {
	switch m.control & 0x03 {
	case 0:
		return MirrorSingleScreen0
	case 1:
		return MirrorSingleScreen1
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *Mapper001) ObserveAddress(uint16) {}
func (m *Mapper001) IRQPending() bool      { return false }

func (m *Mapper001) AdvanceCPUCycles(n uint64) { m.cpuCycle += n }

// ExportState reports MMC1's register state for a savestate: the shift
// register in progress, the four loaded registers, and the two
// consecutive-write-cycle guards.
func (m *Mapper001) ExportState() []uint8 {
	out := make([]uint8, 0, 6+16)
	out = append(out, m.shift, m.shiftLen, m.control, m.chrBank0, m.chrBank1, m.prgBank)
	out = appendUint64(out, m.lastWriteCycle)
	out = appendUint64(out, m.cpuCycle)
	return out
}

// ImportState restores MMC1's register state from a savestate.
func (m *Mapper001) ImportState(data []uint8) {
	if len(data) < 6+16 {
		return
	}
	m.shift, m.shiftLen, m.control, m.chrBank0, m.chrBank1, m.prgBank =
		data[0], data[1], data[2], data[3], data[4], data[5]
	m.lastWriteCycle = readUint64(data[6:14])
	m.cpuCycle = readUint64(data[14:22])
}
