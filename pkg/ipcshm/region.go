package ipcshm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// Options configures a new region at Create time. Attach does not take
// Options; it reads geometry from an out-of-band source (the caller must
// already know slot_count/slot_size, since the region itself carries no
// self-describing header — see the design note on keeping the slot
// layout minimal and wire-compatible with the client contract).
type Options struct {
	// SlotCount is the number of fixed-size slots in the region. Must be
	// in [1, maxSlotCount].
	SlotCount int

	// SlotSize is the total size of one slot, header included. Must be
	// in [minSlotSize, maxSlotSize].
	SlotSize int

	// AcquireTimeout bounds how long a guarded primitive waits for the
	// region mutex before returning ErrBusy. Defaults to 1.5s.
	AcquireTimeout time.Duration

	// Dir overrides where the backing file is created. Defaults to
	// /dev/shm, the conventional Linux tmpfs-backed shared memory mount.
	// Tests typically set this to t.TempDir().
	Dir string
}

func (o Options) withDefaults() Options {
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = defaultAcquireTimeoutMillis * time.Millisecond
	}
	if o.Dir == "" {
		o.Dir = "/dev/shm"
	}
	return o
}

func (o Options) validate() error {
	if o.SlotCount < 1 || o.SlotCount > maxSlotCount {
		return fmt.Errorf("ipcshm: slot_count %d out of range [1, %d]", o.SlotCount, maxSlotCount)
	}
	if o.SlotSize < minSlotSize || o.SlotSize > maxSlotSize {
		return fmt.Errorf("ipcshm: slot_size %d out of range [%d, %d]", o.SlotSize, minSlotSize, maxSlotSize)
	}
	return nil
}

// Region is a live mapping of a named shared-memory region. It owns the
// mmap'd buffer and the mutex that serializes every scan and composite
// operation against it.
//
// Construct with Create (broker, owning process) or Attach (client,
// read-write but non-initializing). Close unmaps and, for a created
// region, unlinks the backing file.
type Region struct {
	name           string
	path           string
	slotCount      int
	slotSize       int
	acquireTimeout time.Duration
	owner          bool // true if this Region created the backing file

	mu     sync.Mutex // guards fd/data/closed bookkeeping, not slot content
	lock   *timedMutex
	fd     int
	data   []byte
	closed bool
}

// Create makes a fresh named region, unlinking and recreating any stale
// region of the same name first. Every byte is zeroed and every slot is
// initialized to EMPTY before Create returns.
//
// If the stale region cannot be removed, Create retries up to
// maxRegionCreateRetries times with a short backoff before giving up
// with a fatal startup error, to recover from a crashed prior broker
// instance that left the region attached.
func Create(name string, opts Options) (*Region, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	path := filepath.Join(opts.Dir, name)
	size := int64(opts.SlotCount) * int64(opts.SlotSize)

	var fd int
	var err error
	for attempt := 0; attempt <= maxRegionCreateRetries; attempt++ {
		fd, err = createBackingFile(path, size)
		if err == nil {
			break
		}
		if attempt == maxRegionCreateRetries {
			return nil, fmt.Errorf("ipcshm: create region %q: %w", name, err)
		}
		time.Sleep(2 * time.Second)
	}

	data, err := syscall.Mmap(fd, 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("ipcshm: mmap region %q: %w", name, err)
	}

	r := &Region{
		name:           name,
		path:           path,
		slotCount:      opts.SlotCount,
		slotSize:       opts.SlotSize,
		acquireTimeout: opts.AcquireTimeout,
		owner:          true,
		lock:           newTimedMutex(),
		fd:             fd,
		data:           data,
	}

	r.resetAllSlotsLocked()

	return r, nil
}

// createBackingFile removes any existing file at path (best effort),
// creates it fresh, and sizes it to size bytes. It returns a raw fd
// rather than an *os.File: os.File installs a runtime finalizer that
// closes its fd on garbage collection, which would race with the fd
// ownership Region keeps for the life of the mapping.
func createBackingFile(path string, size int64) (int, error) {
	_ = os.Remove(path)

	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_CREAT|syscall.O_EXCL, 0o666)
	if err != nil {
		return 0, err
	}
	if err := syscall.Ftruncate(fd, size); err != nil {
		syscall.Close(fd)
		return 0, err
	}
	return fd, nil
}

// Attach opens an existing region in client mode: read-write, but
// without initializing or re-zeroing anything. The caller must already
// know slotCount/slotSize (typically from shared configuration); Attach
// cannot discover geometry on its own since the wire format carries no
// self-describing header by design.
//
// Returns ErrRegionNotFound if the named region does not exist.
func Attach(name string, slotCount, slotSize int, dir string) (*Region, error) {
	if dir == "" {
		dir = "/dev/shm"
	}
	path := filepath.Join(dir, name)

	fd, err := syscall.Open(path, syscall.O_RDWR, 0o666)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil, ErrRegionNotFound
		}
		return nil, fmt.Errorf("ipcshm: attach region %q: %w", name, err)
	}

	size := int64(slotCount) * int64(slotSize)

	data, err := syscall.Mmap(fd, 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("ipcshm: mmap region %q: %w", name, err)
	}

	return &Region{
		name:           name,
		path:           path,
		slotCount:      slotCount,
		slotSize:       slotSize,
		acquireTimeout: defaultAcquireTimeoutMillis * time.Millisecond,
		owner:          false,
		lock:           newTimedMutex(),
		fd:             fd,
		data:           data,
	}, nil
}

// Name reports the region's identifier.
func (r *Region) Name() string { return r.name }

// SlotCount reports the number of slots in the region.
func (r *Region) SlotCount() int { return r.slotCount }

// Close unmaps the region. If this Region created the backing file, the
// file is also unlinked. Close is idempotent.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if len(r.data) > 0 {
		err = syscall.Munmap(r.data)
	}
	syscall.Close(r.fd)
	if r.owner {
		_ = os.Remove(r.path)
	}
	return err
}

func (r *Region) slotBuf(slotID int) ([]byte, error) {
	if slotID < 0 || slotID >= r.slotCount {
		return nil, ErrSlotOutOfRange
	}
	start := slotID * r.slotSize
	return r.data[start : start+r.slotSize], nil
}

// acquire takes the region mutex, bounded by acquireTimeout. Callers
// must always pair a successful acquire with a release.
func (r *Region) acquire() bool {
	return r.lock.tryLock(r.acquireTimeout)
}

func (r *Region) release() {
	r.lock.unlock()
}

// ResetAllSlots re-zeroes the entire region buffer and re-initializes
// every slot to EMPTY. This is the administrative reset: it is run once
// at Create time (to establish the initial state) and may be re-run on
// demand by the broker to recover from stale slots left behind by
// crashed clients. Both call sites share this one function rather than
// keeping duplicate zeroing logic, since the two operations are
// byte-for-byte identical in the system this was ported from.
func (r *Region) ResetAllSlots() error {
	if !r.acquire() {
		return ErrBusy
	}
	defer r.release()
	r.resetAllSlotsLocked()
	return nil
}

func (r *Region) resetAllSlotsLocked() {
	clear(r.data)
	for i := 0; i < r.slotCount; i++ {
		buf, _ := r.slotBuf(i)
		writeStatus(buf, StatusEmpty)
	}
}

// ClaimEmptyAndWrite finds the lowest-index EMPTY slot, writes requestID
// and payload into it, and advances it to REQUEST, all under one held
// region mutex so two concurrent callers can never land on the same
// slot. If no slot is EMPTY, or the payload does not fit, no slot is
// mutated and ok is false.
func (r *Region) ClaimEmptyAndWrite(requestID string, payload []byte) (slotID int, ok bool, err error) {
	if !r.acquire() {
		return 0, false, ErrBusy
	}
	defer r.release()
	for i := 0; i < r.slotCount; i++ {
		buf, _ := r.slotBuf(i)
		if readStatus(buf) != StatusEmpty {
			continue
		}
		if err := encodeSlot(buf, requestID, payload, time.Now().UnixNano()); err != nil {
			return 0, false, err
		}
		writeStatus(buf, StatusRequest)
		return i, true, nil
	}
	return 0, false, nil
}

// FindEmpty returns the lowest-index slot currently in StatusEmpty.
func (r *Region) FindEmpty() (int, bool, error) {
	return r.findFirstWithStatus(StatusEmpty)
}

// FindFirstWithStatus returns the lowest-index slot currently in status s.
func (r *Region) FindFirstWithStatus(s SlotStatus) (int, bool, error) {
	return r.findFirstWithStatus(s)
}

func (r *Region) findFirstWithStatus(s SlotStatus) (int, bool, error) {
	if !r.acquire() {
		return 0, false, ErrBusy
	}
	defer r.release()
	for i := 0; i < r.slotCount; i++ {
		buf, _ := r.slotBuf(i)
		if readStatus(buf) == s {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// WritePayload encodes requestID and payload into slotID without
// touching status. Returns ErrTooLarge if payload does not fit.
func (r *Region) WritePayload(slotID int, requestID string, payload []byte) error {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return err
	}
	if !r.acquire() {
		return ErrBusy
	}
	defer r.release()
	return encodeSlot(buf, requestID, payload, time.Now().UnixNano())
}

// ReadPayload decodes the payload currently stored in slotID.
func (r *Region) ReadPayload(slotID int) (Payload, error) {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return Payload{}, err
	}
	if !r.acquire() {
		return Payload{}, ErrBusy
	}
	defer r.release()
	return decodeSlot(buf)
}

// Status returns the current status of slotID.
func (r *Region) Status(slotID int) (SlotStatus, error) {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return 0, err
	}
	if !r.acquire() {
		return 0, ErrBusy
	}
	defer r.release()
	return readStatus(buf), nil
}

// SetStatus unconditionally sets slotID's status.
func (r *Region) SetStatus(slotID int, s SlotStatus) error {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return err
	}
	if !r.acquire() {
		return ErrBusy
	}
	defer r.release()
	writeStatus(buf, s)
	return nil
}

// CompareAndAdvance sets slotID's status to next iff it currently equals
// expected, atomically under the region mutex. Reports whether the
// transition happened.
func (r *Region) CompareAndAdvance(slotID int, expected, next SlotStatus) (bool, error) {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return false, err
	}
	if !r.acquire() {
		return false, ErrBusy
	}
	defer r.release()
	if readStatus(buf) != expected {
		return false, nil
	}
	writeStatus(buf, next)
	return true, nil
}

// ClearPayload zeroes a slot's payload area and header fields other than
// status. Used when a slot transitions to EMPTY so that data_length is
// never left pointing at stale bytes of a previous occupant.
func (r *Region) ClearPayload(slotID int) error {
	buf, err := r.slotBuf(slotID)
	if err != nil {
		return err
	}
	if !r.acquire() {
		return ErrBusy
	}
	defer r.release()
	zeroHeader(buf)
	zeroPayload(buf)
	return nil
}
