// Package console owns the CPU, PPU, APU and cartridge and co-schedules
// them: the memory map dispatch, DMA timing, NMI/IRQ plumbing, and the
// advance-one-instruction / advance-one-frame driver operations a host
// uses to run the machine.
package console

import (
	"log"

	"nesgo/internal/apu"
	"nesgo/internal/cartridge"
	"nesgo/internal/cpu"
	"nesgo/internal/input"
	"nesgo/internal/memory"
	"nesgo/internal/ppu"
)

// Console is the single mutation boundary the outside world sees: it
// exclusively owns the CPU, PPU, APU and Cartridge, plus the work RAM and
// controller state shared between them.
type Console struct {
	CPU       *cpu.CPU
	PPU       *ppu.PPU
	APU       *apu.APU
	Cartridge *cartridge.Cartridge
	Input     *input.InputState

	memory    *memory.Memory
	ppuMemory *memory.PPUMemory

	Settings Settings

	cpuCycles  uint64
	frameCount uint64

	nmiPending       bool
	dmaInProgress    bool
	dmaSuspendCycles uint64

	trace traceRing

	logger *log.Logger
}

// New creates a Console with no cartridge installed. Load one with
// LoadCartridge before stepping.
func New() *Console {
	c := &Console{
		Settings: DefaultSettings(),
		PPU:      ppu.New(),
		APU:      apu.New(),
		Input:    input.NewInputState(),
		logger:   log.Default(),
	}

	c.memory = memory.New(c.PPU, c.APU, nil)
	c.memory.SetInputSystem(c.Input)
	c.memory.SetLogger(c.logger)
	c.memory.SetDMACallback(c.TriggerOAMDMA)

	c.CPU = cpu.New(c.memory)

	c.PPU.SetNMICallback(c.requestNMI)
	c.PPU.SetFrameCompleteCallback(c.handleFrameComplete)
	c.APU.SetDMCReader(c.memory.Read)

	c.Reset()
	return c
}

// SetLogger installs the logger used for invariant warnings across the
// console and its memory map. Passing nil disables logging.
func (c *Console) SetLogger(logger *log.Logger) {
	c.logger = logger
	c.memory.SetLogger(logger)
}

// Reset resets every owned component to its power-up/reset state.
func (c *Console) Reset() {
	c.CPU.Reset()
	c.PPU.Reset()
	c.APU.Reset()
	c.Input.Reset()

	c.cpuCycles = 0
	c.frameCount = 0
	c.nmiPending = false
	c.dmaInProgress = false
	c.dmaSuspendCycles = 0
	c.trace = traceRing{}

	c.PPU.SetFrameCount(0)
}

// LoadCartridge installs a cartridge, rebuilding the CPU/PPU memory maps
// with the cartridge's declared mirroring, and resets the machine so the
// CPU picks up the new reset vector.
func (c *Console) LoadCartridge(cart *cartridge.Cartridge) {
	c.Cartridge = cart

	c.memory = memory.New(c.PPU, c.APU, cart)
	c.memory.SetInputSystem(c.Input)
	c.memory.SetLogger(c.logger)
	c.memory.SetDMACallback(c.TriggerOAMDMA)

	c.CPU = cpu.New(c.memory)
	c.APU.SetDMCReader(c.memory.Read)

	c.ppuMemory = memory.NewPPUMemory(cart, toMemoryMirrorMode(cart.Mirroring()))
	c.PPU.SetMemory(c.ppuMemory)

	c.PPU.SetNMICallback(c.requestNMI)
	c.PPU.SetFrameCompleteCallback(c.handleFrameComplete)

	c.Reset()
}

func toMemoryMirrorMode(m cartridge.MirrorMode) memory.MirrorMode {
	switch m {
	case cartridge.MirrorVertical:
		return memory.MirrorVertical
	case cartridge.MirrorSingleScreen0:
		return memory.MirrorSingleScreen0
	case cartridge.MirrorSingleScreen1:
		return memory.MirrorSingleScreen1
	case cartridge.MirrorFourScreen:
		return memory.MirrorFourScreen
	default:
		return memory.MirrorHorizontal
	}
}

// requestNMI is invoked by the PPU at the VBlank-set dot when NMI output
// is enabled. Delivery is deferred to the start of the next
// AdvanceInstruction call, matching the one-instruction interrupt-latch
// latency the CPU package's own edge detection already implements.
func (c *Console) requestNMI() {
	c.nmiPending = true
}

// handleFrameComplete is invoked by the PPU once per 262-scanline sweep.
func (c *Console) handleFrameComplete() {
	c.frameCount = c.PPU.GetFrameCount()
}

// SetWatchHook installs an optional PRG-RAM access observer for
// console-level debugging; off by default and never consulted by normal
// emulation.
func (c *Console) SetWatchHook(hook func(addr uint16, value uint8, isWrite bool)) {
	c.memory.SetWatchHook(hook)
}

// ReadByte reads a byte from CPU address space (0x0000-0xFFFF).
func (c *Console) ReadByte(addr uint16) uint8 { return c.memory.Read(addr) }

// WriteByte writes a byte to CPU address space (0x0000-0xFFFF).
func (c *Console) WriteByte(addr uint16, value uint8) { c.memory.Write(addr, value) }

// SetControllerButton sets a single button's pressed state on controller
// 0 or 1.
func (c *Console) SetControllerButton(controllerNum int, button input.Button, pressed bool) {
	switch controllerNum {
	case 0:
		c.Input.Controller1.SetButton(button, pressed)
	case 1:
		c.Input.Controller2.SetButton(button, pressed)
	}
}

// SetControllerButtons sets all eight button states on controller 0 or 1
// at once, in NES order: A, B, Select, Start, Up, Down, Left, Right.
func (c *Console) SetControllerButtons(controllerNum int, buttons [8]bool) {
	switch controllerNum {
	case 0:
		c.Input.SetButtons1(buttons)
	case 1:
		c.Input.SetButtons2(buttons)
	}
}

// FrameBuffer returns the current composited RGB raster, 256x240 pixels
// in row-major order. It is a derived projection of HVFrameBuffer through
// the PPU's built-in 64-entry palette.
func (c *Console) FrameBuffer() []uint32 {
	buf := c.PPU.GetFrameBuffer()
	return buf[:]
}

// HVFrameBuffer returns the primary PPU output raster: one 6-bit hue-value
// palette index per pixel, 256x240 in row-major order.
func (c *Console) HVFrameBuffer() []uint8 {
	buf := c.PPU.GetHVFrameBuffer()
	return buf[:]
}

// AudioSamples drains and returns the APU's queued native-rate samples.
func (c *Console) AudioSamples() []float32 {
	return c.APU.GetSamples()
}

// CycleCount returns the total elapsed CPU cycle count.
func (c *Console) CycleCount() uint64 { return c.cpuCycles }

// FrameCount returns the number of completed 262-scanline sweeps.
func (c *Console) FrameCount() uint64 { return c.frameCount }

// Trace returns the last (up to 200) executed instructions, oldest
// first. Diagnostics only; not part of savestate.
func (c *Console) Trace() []TraceEntry {
	return c.trace.snapshot()
}

// IsDMAInProgress reports whether an OAM DMA transfer is currently
// suspending the CPU.
func (c *Console) IsDMAInProgress() bool { return c.dmaInProgress }
