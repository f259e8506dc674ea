//go:build unix

package shm

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cellSize is one machine word; every access is a single atomic load or
// store on the mapped page.
const cellSize = 8

// Cell is a shared scalar living in a memory-mapped file, readable and
// writable by any process on the host that opens the same path. Get/set of
// the whole word is atomic; nothing larger is. Ordering relative to other
// cells or channels is not guaranteed unless the caller imposes one with a
// FileLock.
type Cell struct {
	f   *os.File
	mem []byte
}

// CreateCell creates (or truncates) the backing file and maps it.
func CreateCell(path string) (*Cell, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: create cell: %w", err)
	}
	if err := f.Truncate(cellSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: size cell: %w", err)
	}
	return mapCell(f)
}

// OpenCell maps an existing cell file.
func OpenCell(path string) (*Cell, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open cell: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat cell: %w", err)
	}
	if fi.Size() < cellSize {
		f.Close()
		return nil, fmt.Errorf("shm: %s is not a cell file", path)
	}
	return mapCell(f)
}

func mapCell(f *os.File) (*Cell, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, cellSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap cell: %w", err)
	}
	return &Cell{f: f, mem: mem}, nil
}

func (c *Cell) word() *uint64 {
	return (*uint64)(unsafe.Pointer(&c.mem[0]))
}

// Uint64 atomically reads the cell.
func (c *Cell) Uint64() uint64 { return atomic.LoadUint64(c.word()) }

// SetUint64 atomically writes the cell.
func (c *Cell) SetUint64(v uint64) { atomic.StoreUint64(c.word(), v) }

// Int64 atomically reads the cell as a signed value.
func (c *Cell) Int64() int64 { return int64(atomic.LoadUint64(c.word())) }

// SetInt64 atomically writes a signed value.
func (c *Cell) SetInt64(v int64) { atomic.StoreUint64(c.word(), uint64(v)) }

// Float64 atomically reads the cell as a float.
func (c *Cell) Float64() float64 { return math.Float64frombits(atomic.LoadUint64(c.word())) }

// SetFloat64 atomically writes a float.
func (c *Cell) SetFloat64(v float64) { atomic.StoreUint64(c.word(), math.Float64bits(v)) }

// Close unmaps the cell and closes the backing file. The file itself stays
// for other participants; remove it separately when the last one is done.
func (c *Cell) Close() error {
	if err := unix.Munmap(c.mem); err != nil {
		c.f.Close()
		return fmt.Errorf("shm: munmap cell: %w", err)
	}
	c.mem = nil
	return c.f.Close()
}
