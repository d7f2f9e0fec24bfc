package console

import (
	"fmt"
	"io"

	"nesgo/internal/savestate"
)

// ToSavestate captures the console's full state. Returns an error if no
// cartridge is loaded; a savestate is meaningless without one, since
// reloading it needs a cartridge of the matching mapper kind already in
// place.
func (c *Console) ToSavestate() (savestate.State, error) {
	if c.Cartridge == nil {
		return savestate.State{}, &savestate.Error{Op: "capture", Err: fmt.Errorf("no cartridge loaded")}
	}

	return savestate.State{
		CPU:   c.CPU.Snapshot(),
		PPU:   c.PPU.Snapshot(),
		APU:   c.APU.Snapshot(),
		Input: c.Input.Snapshot(),

		MapperKind:  c.Cartridge.MapperKind(),
		MapperState: c.Cartridge.ExportMapperState(),

		WRAM:    c.memory.WRAMSnapshot(),
		VRAM:    c.ppuMemory.VRAMSnapshot(),
		Palette: c.ppuMemory.PaletteSnapshot(),
		PRGRAM:  c.Cartridge.PRGRAMSnapshot(),
		CHRRAM:  c.Cartridge.CHRRAMSnapshot(),
		OpenBus: c.memory.OpenBusSnapshot(),

		CycleCount: c.cpuCycles,
		FrameCount: c.frameCount,
	}, nil
}

// FromSavestate restores the console to a previously captured state. A
// cartridge of the matching mapper kind must already be loaded; no
// Console fields are mutated if the mapper kind disagrees, so a failed
// restore leaves the console exactly as it was before the call.
func (c *Console) FromSavestate(s savestate.State) error {
	if c.Cartridge == nil {
		return &savestate.Error{Op: "restore", Err: fmt.Errorf("no cartridge loaded")}
	}
	if c.Cartridge.MapperKind() != s.MapperKind {
		return &savestate.Error{Op: "restore", Err: fmt.Errorf("savestate mapper kind %d does not match loaded cartridge's mapper kind %d", s.MapperKind, c.Cartridge.MapperKind())}
	}

	c.CPU.Restore(s.CPU)
	c.PPU.Restore(s.PPU)
	c.APU.Restore(s.APU)
	c.Input.Restore(s.Input)

	c.Cartridge.ImportMapperState(s.MapperState)
	c.memory.RestoreWRAM(s.WRAM)
	c.ppuMemory.RestoreVRAM(s.VRAM)
	c.ppuMemory.RestorePalette(s.Palette)
	c.Cartridge.RestorePRGRAM(s.PRGRAM)
	if s.CHRRAM != nil {
		c.Cartridge.RestoreCHRRAM(s.CHRRAM)
	}
	c.memory.RestoreOpenBus(s.OpenBus)

	c.cpuCycles = s.CycleCount
	c.frameCount = s.FrameCount

	c.dmaInProgress = false
	c.dmaSuspendCycles = 0
	c.nmiPending = false
	c.trace = traceRing{}

	return nil
}

// SaveTo encodes the console's current state to w.
func (c *Console) SaveTo(w io.Writer) error {
	s, err := c.ToSavestate()
	if err != nil {
		return err
	}
	return savestate.Encode(w, s)
}

// LoadFrom decodes and restores a console's state from r.
func (c *Console) LoadFrom(r io.Reader) error {
	s, err := savestate.Decode(r)
	if err != nil {
		return err
	}
	return c.FromSavestate(s)
}
