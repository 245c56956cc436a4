// Package calibration persists per-channel anemometer calibration in a
// byte-addressed non-volatile memory.
package calibration

import (
	"fmt"
)

// Block layout. Each channel owns one block starting at BaseAddress + id*BlockSize.
const (
	BaseAddress   = 50
	BlockSize     = 50
	factorOffset  = 0
	enabledOffset = 10
	offsetOffset  = 20
)

// Calibration converts a raw pulse rate into a physical reading.
type Calibration struct {
	Factor  float64
	Offset  float64
	Enabled bool
}

// flusher is implemented by memories that buffer writes, such as Image.
type flusher interface {
	Flush() error
}

// Store reads and writes calibration blocks.
type Store struct {
	mem Memory
}

// NewStore returns a Store backed by mem.
func NewStore(mem Memory) *Store {
	return &Store{mem: mem}
}

// Address returns the first byte of channel id's block.
func Address(id uint8) int {
	return BaseAddress + int(id)*BlockSize
}

// Load reads the calibration of channel id. Nothing is validated: a block
// that was never written reads back as whatever the memory holds.
func (s *Store) Load(id uint8) (Calibration, error) {
	base := Address(id)

	factor, err := s.mem.ReadFloatAt(base + factorOffset)
	if err != nil {
		return Calibration{}, fmt.Errorf("load factor for channel %d: %w", id, err)
	}
	offset, err := s.mem.ReadFloatAt(base + offsetOffset)
	if err != nil {
		return Calibration{}, fmt.Errorf("load offset for channel %d: %w", id, err)
	}
	flag, err := s.mem.ReadByteAt(base + enabledOffset)
	if err != nil {
		return Calibration{}, fmt.Errorf("load enabled flag for channel %d: %w", id, err)
	}

	return Calibration{
		Factor:  factor,
		Offset:  offset,
		Enabled: flag != 0,
	}, nil
}

// Save writes the calibration of channel id. The memory skips unchanged
// bytes, so saving the same values twice is harmless.
func (s *Store) Save(id uint8, cal Calibration) error {
	base := Address(id)

	if err := s.mem.WriteFloatAt(base+factorOffset, cal.Factor); err != nil {
		return fmt.Errorf("save factor for channel %d: %w", id, err)
	}
	if err := s.mem.WriteFloatAt(base+offsetOffset, cal.Offset); err != nil {
		return fmt.Errorf("save offset for channel %d: %w", id, err)
	}
	var flag byte
	if cal.Enabled {
		flag = 1
	}
	if err := s.mem.WriteByteAt(base+enabledOffset, flag); err != nil {
		return fmt.Errorf("save enabled flag for channel %d: %w", id, err)
	}

	if f, ok := s.mem.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("save channel %d: %w", id, err)
		}
	}
	return nil
}
