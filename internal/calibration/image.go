package calibration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// ImageSize is the 1 KiB EEPROM of the ATmega32U4 board.
const ImageSize = 1024

// erased is the value of a never-written EEPROM cell.
const erased = 0xFF

// floatSize is the width of a stored IEEE-754 double.
const floatSize = 8

// ErrAddressOutOfRange is returned for reads or writes outside the image.
var ErrAddressOutOfRange = errors.New("calibration: address out of range")

// Memory is the non-volatile storage contract the Store relies on.
// Addresses are byte offsets. Floats are little-endian IEEE-754 doubles.
type Memory interface {
	ReadFloatAt(addr int) (float64, error)
	WriteFloatAt(addr int, v float64) error
	ReadByteAt(addr int) (byte, error)
	WriteByteAt(addr int, b byte) error
}

// Image is a byte-addressed EEPROM image held in memory and optionally
// persisted to a file. Writes only touch bytes whose value changes, and the
// number of physical byte writes is counted.
type Image struct {
	mu     sync.Mutex
	data   [ImageSize]byte
	path   string
	writes int
	dirty  bool
}

// NewImage returns an erased in-memory image that is never persisted.
func NewImage() *Image {
	img := &Image{}
	for i := range img.data {
		img.data[i] = erased
	}
	return img
}

// OpenImage loads an image from path. A missing file yields an erased image
// that will be created on the first Flush.
func OpenImage(path string) (*Image, error) {
	img := NewImage()
	img.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return img, nil
		}
		return nil, fmt.Errorf("read eeprom image: %w", err)
	}
	if len(data) > ImageSize {
		return nil, fmt.Errorf("read eeprom image: %d bytes exceeds %d", len(data), ImageSize)
	}
	copy(img.data[:], data)
	return img, nil
}

// ReadFloatAt reads the double stored at addr.
func (m *Image) ReadFloatAt(addr int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(addr, floatSize); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(m.data[addr : addr+floatSize])
	return math.Float64frombits(bits), nil
}

// WriteFloatAt stores v at addr, skipping bytes that already hold the value.
func (m *Image) WriteFloatAt(addr int, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(addr, floatSize); err != nil {
		return err
	}
	var buf [floatSize]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	for i, b := range buf {
		m.update(addr+i, b)
	}
	return nil
}

// ReadByteAt reads the byte at addr.
func (m *Image) ReadByteAt(addr int) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// WriteByteAt stores b at addr if it differs from the current value.
func (m *Image) WriteByteAt(addr int, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(addr, 1); err != nil {
		return err
	}
	m.update(addr, b)
	return nil
}

// Writes returns the number of physical byte writes since the image was opened.
func (m *Image) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Flush persists the image to its file. It is a no-op for in-memory images
// and when nothing changed since the last flush.
func (m *Image) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" || !m.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create eeprom dir: %w", err)
	}

	// Write a sibling file and rename it into place.
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, m.data[:], 0o644); err != nil {
		return fmt.Errorf("write eeprom image: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename eeprom image: %w", err)
	}
	m.dirty = false
	return nil
}

func (m *Image) update(addr int, b byte) {
	if m.data[addr] == b {
		return
	}
	m.data[addr] = b
	m.writes++
	m.dirty = true
}

func checkRange(addr, width int) error {
	if addr < 0 || addr+width > ImageSize {
		return fmt.Errorf("%w: %d+%d", ErrAddressOutOfRange, addr, width)
	}
	return nil
}
