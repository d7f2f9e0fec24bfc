package cartridge

import "encoding/binary"

// appendUint64/readUint64 pack a mapper's 64-bit counters into the flat
// byte slices ExportState/ImportState exchange with the savestate
// package, without pulling in encoding/gob at the mapper level (each
// mapper's registers are too small and irregularly shaped to benefit
// from reflection-based encoding).
func appendUint64(b []uint8, v uint64) []uint8 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

func readUint64(b []uint8) uint64 {
	return binary.LittleEndian.Uint64(b)
}
