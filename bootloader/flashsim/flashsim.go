// Package flashsim is an in-memory stand-in for the application flash
// region the bootloader updater writes into: page-erase, page-write, and
// flat reads, with erased bytes reading back as 0xFF the way NOR flash
// actually behaves. There is no real flash part to drive from a host
// process, so this plays the same role the teacher's appdrivers package
// plays for simulated sensor devices — a faithful behavioral model standing
// in for hardware the tests can't touch directly.
package flashsim

import (
	"errors"
	"sync"
)

// ErrBadPage is returned for a page index outside [0, NumPages).
var ErrBadPage = errors.New("flashsim: page index out of range")

// ErrBadLength is returned when WritePage's data doesn't exactly fill one page.
var ErrBadLength = errors.New("flashsim: write data does not match page size")

// Device is a page-erasable byte array of NumPages*PageSize bytes.
type Device struct {
	mu       sync.Mutex
	pageSize int
	pages    [][]byte
}

// NewDevice builds a Device of numPages pages of pageSize bytes each, fully
// erased (all 0xFF).
func NewDevice(numPages, pageSize int) *Device {
	d := &Device{pageSize: pageSize, pages: make([][]byte, numPages)}
	for i := range d.pages {
		d.pages[i] = erasedPage(pageSize)
	}
	return d
}

func erasedPage(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = 0xFF
	}
	return p
}

// PageSize returns the device's fixed page size in bytes.
func (d *Device) PageSize() int { return d.pageSize }

// NumPages returns the number of addressable pages.
func (d *Device) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}

// ErasePage resets one page to all-0xFF.
func (d *Device) ErasePage(page int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page < 0 || page >= len(d.pages) {
		return ErrBadPage
	}
	d.pages[page] = erasedPage(d.pageSize)
	return nil
}

// EraseAll resets every page to all-0xFF, backing the bootloader's ERASE
// command which wipes the whole application region before a new image
// upload begins.
func (d *Device) EraseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.pages {
		d.pages[i] = erasedPage(d.pageSize)
	}
	return nil
}

// WritePage writes data into page, which must be exactly PageSize bytes.
func (d *Device) WritePage(page int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page < 0 || page >= len(d.pages) {
		return ErrBadPage
	}
	if len(data) != d.pageSize {
		return ErrBadLength
	}
	cp := make([]byte, d.pageSize)
	copy(cp, data)
	d.pages[page] = cp
	return nil
}

// ReadPage returns a copy of one page's contents.
func (d *Device) ReadPage(page int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page < 0 || page >= len(d.pages) {
		return nil, ErrBadPage
	}
	out := make([]byte, d.pageSize)
	copy(out, d.pages[page])
	return out, nil
}

// ReadAll flattens every page into one contiguous byte slice, in page order.
func (d *Device) ReadAll() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, 0, len(d.pages)*d.pageSize)
	for _, p := range d.pages {
		out = append(out, p...)
	}
	return out
}
