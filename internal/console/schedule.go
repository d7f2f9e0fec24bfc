package console

// step fetches, decodes and executes a single CPU instruction, recording
// its pre-execution state into the trace ring first.
func (c *Console) step() uint64 {
	c.trace.push(TraceEntry{
		PC:        c.CPU.PC,
		Opcode:    c.memory.Read(c.CPU.PC),
		A:         c.CPU.A,
		X:         c.CPU.X,
		Y:         c.CPU.Y,
		SP:        c.CPU.SP,
		Status:    c.CPU.GetStatusByte(),
		CPUCycles: c.cpuCycles,
	})
	return c.CPU.Step()
}

// AdvanceInstruction advances the console by one CPU instruction, or by
// one cycle's worth of a still-pending OAM DMA transfer, then
// synchronizes the APU and mapper to the elapsed CPU cycles, the PPU to
// three times as many dots, and services the CPU's NMI/IRQ lines.
//
// A decode error from an undefined opcode is surfaced via
// c.CPU.TakeDecodeError() after this call returns.
func (c *Console) AdvanceInstruction() uint64 {
	var cpuCycles uint64

	if c.dmaSuspendCycles > 0 {
		cpuCycles = 1
		c.dmaSuspendCycles--
		if c.dmaSuspendCycles == 0 {
			c.dmaInProgress = false
		}
	} else {
		if c.nmiPending {
			c.CPU.TriggerNMI()
			c.nmiPending = false
		}
		c.CPU.SetIRQ(c.irqAsserted())
		cpuCycles = c.step()
	}

	c.advanceSubsystems(cpuCycles)
	c.cpuCycles += cpuCycles
	return cpuCycles
}

// irqAsserted reports the OR of every IRQ source the console scheduler
// knows about: the APU frame sequencer, the DMC channel, and the
// cartridge mapper's own counter (MMC3's scanline IRQ).
func (c *Console) irqAsserted() bool {
	if c.APU.GetFrameIRQ() || c.APU.GetDMCIRQ() {
		return true
	}
	if c.Cartridge != nil {
		return c.Cartridge.IRQPending()
	}
	return false
}

// advanceSubsystems advances the APU and mapper by cpuCycles CPU cycles
// and the PPU by 3*cpuCycles dots.
func (c *Console) advanceSubsystems(cpuCycles uint64) {
	for i := uint64(0); i < cpuCycles; i++ {
		c.APU.Step()
	}
	if c.Cartridge != nil {
		c.Cartridge.AdvanceCPUCycles(cpuCycles)
	}
	ppuDots := cpuCycles * 3
	for i := uint64(0); i < ppuDots; i++ {
		c.PPU.Step()
	}
}

// AdvanceFrame repeats AdvanceInstruction until the PPU enters VBlank
// from a non-VBlank state, returning the CPU cycles consumed.
func (c *Console) AdvanceFrame() uint64 {
	start := c.cpuCycles
	wasVBlank := c.PPU.IsVBlank()

	for {
		c.AdvanceInstruction()
		nowVBlank := c.PPU.IsVBlank()
		if nowVBlank && !wasVBlank {
			break
		}
		wasVBlank = nowVBlank
	}

	return c.cpuCycles - start
}

// TriggerOAMDMA performs an immediate 256-byte OAM transfer from CPU page
// sourcePage<<8 and schedules the CPU-suspension cost (513 cycles, or 514
// if triggered on an odd CPU cycle) over the following AdvanceInstruction
// calls.
func (c *Console) TriggerOAMDMA(sourcePage uint8) {
	if c.dmaInProgress {
		return
	}

	dmaCycles := uint64(513)
	if c.cpuCycles%2 == 1 {
		dmaCycles = 514
	}
	c.dmaInProgress = true
	c.dmaSuspendCycles = dmaCycles

	sourceAddress := uint16(sourcePage) << 8
	for i := 0; i < 256; i++ {
		value := c.memory.Read(sourceAddress + uint16(i))
		c.PPU.WriteOAM(uint8(i), value)
	}
}

// Run advances the console by the given number of whole frames.
func (c *Console) Run(frames int) {
	for i := 0; i < frames; i++ {
		c.AdvanceFrame()
	}
}

// RunCycles advances the console by at least the given number of CPU
// cycles, stopping at the next instruction boundary that reaches or
// passes the target.
func (c *Console) RunCycles(cycles uint64) {
	target := c.cpuCycles + cycles
	for c.cpuCycles < target {
		c.AdvanceInstruction()
	}
}
