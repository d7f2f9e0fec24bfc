// Package app provides save state functionality for the NES emulator.
package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nesgo/internal/console"
)

// StateManager manages save states
type StateManager struct {
	saveDirectory string
	maxSlots      int
	initialized   bool
}

// stateMetadata is the slot's header record: everything a menu needs to
// list and validate a save state without decoding its (potentially large)
// savestate.State body.
type stateMetadata struct {
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	ROMPath     string    `json:"rom_path"`
	ROMChecksum string    `json:"rom_checksum"`
	SlotNumber  int       `json:"slot_number"`
	Description string    `json:"description"`
}

// StateSlotInfo contains information about a save state slot
type StateSlotInfo struct {
	SlotNumber  int       `json:"slot_number"`
	Used        bool      `json:"used"`
	Timestamp   time.Time `json:"timestamp"`
	ROMPath     string    `json:"rom_path"`
	Description string    `json:"description"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
}

// NewStateManager creates a new state manager
func NewStateManager(saveDirectory string) *StateManager {
	manager := &StateManager{
		saveDirectory: saveDirectory,
		maxSlots:      10, // Default to 10 save slots
		initialized:   false,
	}

	if err := manager.initialize(); err != nil {
		// Log error but continue
		fmt.Printf("Warning: State manager initialization failed: %v\n", err)
	}

	return manager
}

// initialize initializes the state manager
func (sm *StateManager) initialize() error {
	// Create save directory if it doesn't exist
	if err := os.MkdirAll(sm.saveDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %v", err)
	}

	sm.initialized = true
	return nil
}

// SaveState saves the current emulator state to a slot. The file is a
// JSON metadata line followed by a gob-encoded savestate.State body, so a
// slot listing can read just the first line without decoding the full
// machine state.
func (sm *StateManager) SaveState(c *console.Console, slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d (must be 0-%d)", slot, sm.maxSlots-1)
	}
	if c == nil {
		return fmt.Errorf("console cannot be nil")
	}

	meta := stateMetadata{
		Version:     "1.0",
		Timestamp:   time.Now(),
		ROMPath:     romPath,
		ROMChecksum: sm.calculateROMChecksum(romPath),
		SlotNumber:  slot,
		Description: fmt.Sprintf("Auto-save %s", time.Now().Format("2006-01-02 15:04:05")),
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	if err := sm.writeStateFile(filePath, meta, c); err != nil {
		return fmt.Errorf("failed to save state: %v", err)
	}
	return nil
}

// LoadState loads a saved state from a slot and restores it onto c. The
// console must already have a cartridge of the matching mapper kind
// loaded, the same requirement console.Console.FromSavestate imposes.
func (sm *StateManager) LoadState(c *console.Console, slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d (must be 0-%d)", slot, sm.maxSlots-1)
	}
	if c == nil {
		return fmt.Errorf("console cannot be nil")
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("save state not found in slot %d", slot)
	}

	meta, err := sm.readStateMetadata(filePath)
	if err != nil {
		return fmt.Errorf("failed to load state: %v", err)
	}
	if err := sm.validateMetadata(meta, romPath); err != nil {
		return fmt.Errorf("invalid save state: %v", err)
	}

	if err := sm.restoreStateFile(filePath, c); err != nil {
		return fmt.Errorf("failed to restore state: %v", err)
	}
	return nil
}

// writeStateFile writes a metadata line followed by a gob-encoded
// savestate body to filePath.
func (sm *StateManager) writeStateFile(filePath string, meta stateMetadata, c *console.Console) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	metaLine, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(append(metaLine, '\n')); err != nil {
		return fmt.Errorf("failed to write metadata: %v", err)
	}
	if err := c.SaveTo(f); err != nil {
		return fmt.Errorf("failed to encode savestate: %v", err)
	}
	return nil
}

// readStateMetadata reads just the metadata header line from a save file.
func (sm *StateManager) readStateMetadata(filePath string) (stateMetadata, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return stateMetadata{}, fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		return stateMetadata{}, fmt.Errorf("empty save state file")
	}

	var meta stateMetadata
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
		return stateMetadata{}, fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	return meta, nil
}

// restoreStateFile reads the metadata line and then decodes the
// remaining gob body onto c.
func (sm *StateManager) restoreStateFile(filePath string, c *console.Console) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read metadata line: %v", err)
	}
	return c.LoadFrom(reader)
}

// validateMetadata validates a loaded save state's metadata header.
func (sm *StateManager) validateMetadata(meta stateMetadata, currentROMPath string) error {
	if meta.Version == "" {
		return fmt.Errorf("missing version information")
	}
	if meta.ROMPath != currentROMPath {
		return fmt.Errorf("save state is for a different ROM")
	}
	return nil
}

// getSlotFilePath generates the file path for a save slot
func (sm *StateManager) getSlotFilePath(slot int, romPath string) string {
	romName := filepath.Base(romPath)
	romNameWithoutExt := romName[:len(romName)-len(filepath.Ext(romName))]
	fileName := fmt.Sprintf("%s_slot_%d.save", romNameWithoutExt, slot)
	return filepath.Join(sm.saveDirectory, fileName)
}

// calculateROMChecksum calculates a checksum for ROM verification
func (sm *StateManager) calculateROMChecksum(romPath string) string {
	// Simplified checksum - in a real implementation,
	// you would calculate MD5/SHA256 of the ROM file
	return fmt.Sprintf("checksum_%s", filepath.Base(romPath))
}

// GetSlotInfo returns information about all save slots
func (sm *StateManager) GetSlotInfo(romPath string) []StateSlotInfo {
	slots := make([]StateSlotInfo, sm.maxSlots)

	for i := 0; i < sm.maxSlots; i++ {
		slotInfo := StateSlotInfo{
			SlotNumber: i,
			Used:       false,
		}

		filePath := sm.getSlotFilePath(i, romPath)
		if stat, err := os.Stat(filePath); err == nil {
			// File exists
			slotInfo.Used = true
			slotInfo.FilePath = filePath
			slotInfo.FileSize = stat.Size()
			slotInfo.Timestamp = stat.ModTime()

			// Try to load basic info from the save state
			if meta, err := sm.readStateMetadata(filePath); err == nil {
				slotInfo.ROMPath = meta.ROMPath
				slotInfo.Description = meta.Description
				slotInfo.Timestamp = meta.Timestamp
			}
		}

		slots[i] = slotInfo
	}

	return slots
}

// DeleteState deletes a save state from a slot
func (sm *StateManager) DeleteState(slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}

	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d", slot)
	}

	filePath := sm.getSlotFilePath(slot, romPath)

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("save state not found in slot %d", slot)
	}

	// Delete file
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete save state: %v", err)
	}

	return nil
}

// HasSaveState checks if a save state exists in a slot
func (sm *StateManager) HasSaveState(slot int, romPath string) bool {
	if slot < 0 || slot >= sm.maxSlots {
		return false
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	_, err := os.Stat(filePath)
	return err == nil
}

// GetMaxSlots returns the maximum number of save slots
func (sm *StateManager) GetMaxSlots() int {
	return sm.maxSlots
}

// SetMaxSlots sets the maximum number of save slots
func (sm *StateManager) SetMaxSlots(slots int) {
	if slots > 0 {
		sm.maxSlots = slots
	}
}

// GetSaveDirectory returns the save directory path
func (sm *StateManager) GetSaveDirectory() string {
	return sm.saveDirectory
}

// SetSaveDirectory sets the save directory path
func (sm *StateManager) SetSaveDirectory(directory string) error {
	sm.saveDirectory = directory
	return sm.initialize()
}

// ExportState exports a save state to a specific file
func (sm *StateManager) ExportState(c *console.Console, filePath string, romPath string) error {
	meta := stateMetadata{
		Version:     "1.0",
		Timestamp:   time.Now(),
		ROMPath:     romPath,
		ROMChecksum: sm.calculateROMChecksum(romPath),
		SlotNumber:  -1, // Export doesn't use slots
		Description: fmt.Sprintf("Export %s", time.Now().Format("2006-01-02 15:04:05")),
	}
	return sm.writeStateFile(filePath, meta, c)
}

// ImportState imports a save state from a specific file
func (sm *StateManager) ImportState(c *console.Console, filePath string, romPath string) error {
	meta, err := sm.readStateMetadata(filePath)
	if err != nil {
		return fmt.Errorf("failed to import state: %v", err)
	}
	if err := sm.validateMetadata(meta, romPath); err != nil {
		return fmt.Errorf("invalid imported state: %v", err)
	}
	return sm.restoreStateFile(filePath, c)
}

// Cleanup cleans up state manager resources
func (sm *StateManager) Cleanup() error {
	sm.initialized = false
	return nil
}

// GetStateManagerStats returns statistics about the state manager
func (sm *StateManager) GetStateManagerStats(romPath string) StateManagerStats {
	slots := sm.GetSlotInfo(romPath)

	var usedSlots int
	var totalSize int64
	for _, slot := range slots {
		if slot.Used {
			usedSlots++
			totalSize += slot.FileSize
		}
	}

	return StateManagerStats{
		MaxSlots:      sm.maxSlots,
		UsedSlots:     usedSlots,
		FreeSlots:     sm.maxSlots - usedSlots,
		TotalSize:     totalSize,
		SaveDirectory: sm.saveDirectory,
		Initialized:   sm.initialized,
	}
}

// StateManagerStats contains state manager statistics
type StateManagerStats struct {
	MaxSlots      int    `json:"max_slots"`
	UsedSlots     int    `json:"used_slots"`
	FreeSlots     int    `json:"free_slots"`
	TotalSize     int64  `json:"total_size"`
	SaveDirectory string `json:"save_directory"`
	Initialized   bool   `json:"initialized"`
}
