// Package savestate defines the binary serialization format for a
// Console's state: CPU, PPU, APU, cartridge/mapper, work RAM, and
// controller latches. The format is opaque in field ordering but
// round-trips exactly (encoding it and decoding the result reproduces
// the original state bit-for-bit), the property SPEC_FULL.md's
// savestate testable property requires.
package savestate

import (
	"encoding/gob"
	"fmt"
	"io"

	"nesgo/internal/apu"
	"nesgo/internal/cartridge"
	"nesgo/internal/cpu"
	"nesgo/internal/input"
	"nesgo/internal/ppu"
)

// formatVersion guards against decoding a savestate produced by an
// incompatible future layout.
const formatVersion = 1

// State is a self-describing snapshot of everything a Console needs to
// resume execution exactly where it left off. The output raster
// (PPU.frameBuffer) and the diagnostics trace ring are deliberately not
// part of this type: the former re-derives from the rest of this state
// on the next rendered frame, and the latter is explicitly
// diagnostics-only per SPEC_FULL.md.
type State struct {
	Version uint32

	CPU   cpu.State
	PPU   ppu.State
	APU   apu.State
	Input input.InputStateData

	// MapperKind tags which concrete mapper MapperState belongs to, so
	// LoadState can refuse to apply a savestate to a cartridge using a
	// different mapper rather than silently corrupting its registers.
	MapperKind  cartridge.MapperKind
	MapperState []uint8

	WRAM    [0x800]uint8
	VRAM    [0x1000]uint8
	Palette [32]uint8
	PRGRAM  [0x2000]uint8

	// CHRRAM is nil when the cartridge's CHR memory is ROM (nothing to
	// restore; it reloads from the cartridge file unchanged).
	CHRRAM []uint8

	OpenBus uint8

	CycleCount uint64
	FrameCount uint64
}

// Error reports a savestate encode/decode failure. It wraps the
// underlying encoding/gob or I/O error so callers can use errors.Is and
// errors.As against it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("savestate: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Encode serializes a State to w using encoding/gob. No partial write
// escapes a failed encode beyond what gob itself may have already
// flushed to w.
func Encode(w io.Writer, s State) error {
	s.Version = formatVersion
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return &Error{Op: "encode", Err: err}
	}
	return nil
}

// Decode deserializes a State from r. The returned State is the zero
// value on any failure; no partial state is returned for a caller to
// accidentally apply.
func Decode(r io.Reader) (State, error) {
	var s State
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return State{}, &Error{Op: "decode", Err: err}
	}
	if s.Version != formatVersion {
		return State{}, &Error{Op: "decode", Err: fmt.Errorf("unsupported savestate version %d (want %d)", s.Version, formatVersion)}
	}
	return s, nil
}
