package console

// CPUState is a lightweight CPU register/flag snapshot for debugging and
// test assertions, distinct from cpu.State (the savestate's full
// serializable form): this one spells out the status flags individually
// rather than packing them into a byte, which reads better in a debugger
// or a table-driven test's expected-value literal.
type CPUState struct {
	PC      uint16
	A, X, Y uint8
	SP      uint8
	Cycles  uint64
	Flags   CPUFlags
}

// CPUFlags is the 6502 status register unpacked into named bits.
type CPUFlags struct {
	N, V, B, D, I, Z, C bool
}

// GetCPUState returns a snapshot of the CPU's registers and flags for
// debugging.
func (c *Console) GetCPUState() CPUState {
	return CPUState{
		PC:     c.CPU.PC,
		A:      c.CPU.A,
		X:      c.CPU.X,
		Y:      c.CPU.Y,
		SP:     c.CPU.SP,
		Cycles: c.cpuCycles,
		Flags: CPUFlags{
			N: c.CPU.N,
			V: c.CPU.V,
			B: c.CPU.B,
			D: c.CPU.D,
			I: c.CPU.I,
			Z: c.CPU.Z,
			C: c.CPU.C,
		},
	}
}

// PPUState is a lightweight PPU timing/status snapshot for debugging.
type PPUState struct {
	Scanline    int
	Cycle       int
	FrameCount  uint64
	VBlankFlag  bool
	RenderingOn bool
	NMIEnabled  bool
}

// GetPPUState returns a snapshot of the PPU's timing position and status
// for debugging.
func (c *Console) GetPPUState() PPUState {
	return PPUState{
		Scanline:    c.PPU.GetScanline(),
		Cycle:       c.PPU.GetCycle(),
		FrameCount:  c.PPU.GetFrameCount(),
		VBlankFlag:  c.PPU.IsVBlank(),
		RenderingOn: c.PPU.IsRenderingEnabled(),
		NMIEnabled:  c.PPU.Snapshot().PPUCtrl&0x80 != 0,
	}
}
