// Package ipcshm implements a fixed-slot shared-memory IPC region for
// brokering requests between external clients and an in-process worker
// pool.
//
// A region is a contiguous byte buffer, identified by a process-global
// name, partitioned into a fixed number of equal-size slots. Each slot
// carries a small binary header (status, timestamp, request id, payload
// length) followed by a UTF-8 JSON payload. Exactly one process creates
// a region (Create); every other process attaches to it (Attach).
//
// Typical broker-side usage:
//
//	region, err := ipcshm.Create("gemma_ipc_shm", ipcshm.Options{SlotCount: 5, SlotSize: 8192})
//	if err != nil {
//	    return err
//	}
//	defer region.Close()
//
//	sched := ipcshm.NewScheduler(region)
//	slotID, payload, ok, err := sched.ClaimRequest()
//
// Typical client-side usage:
//
//	region, err := ipcshm.Attach("gemma_ipc_shm", 5, 8192, "/dev/shm")
//	if err != nil {
//	    return err
//	}
//	defer region.Close()
//
//	sched := ipcshm.NewScheduler(region)
//	slotID, ok, err := sched.SubmitRequest(requestID, payload)
//
// Every slot transitions through a small state machine: EMPTY -> REQUEST
// (client write) -> PROCESSING (broker claim) -> RESPONSE (broker write)
// -> EMPTY (client consume). ERROR is reachable from PROCESSING and is
// only cleared by an administrative reset. All scans and composite
// status operations are serialized by a single region-wide mutex with a
// bounded acquire timeout; a timed-out acquire returns [ErrBusy] and
// leaves slot state unchanged.
//
// Recovery model: [ErrBusy] is transient and safe to retry. [ErrTooLarge]
// means the payload does not fit the slot's payload area; the caller must
// shrink the payload or use a region with a larger slot size. [ErrInvalidSlot]
// and [ErrWrongState] indicate the affected slot, not the region, is
// unusable; the broker marks it ERROR and moves on.
package ipcshm
