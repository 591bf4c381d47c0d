package ipcshm

import "errors"

// Scheduler expresses the slot state machine in one place, built on top
// of a Region's guarded primitives. Every method here is safe to call
// concurrently; the underlying Region mutex provides atomicity for each
// operation's scan-then-mutate sequence.
type Scheduler struct {
	region *Region
}

// NewScheduler wraps region with the request/response state machine.
func NewScheduler(region *Region) *Scheduler {
	return &Scheduler{region: region}
}

// SubmitRequest finds an empty slot, writes payload into it, and
// advances it to REQUEST, as one atomic claim. If no slot is empty, or
// the payload does not fit, no slot is mutated and ok is false.
//
// This must be a single Region call rather than a find/write/set-status
// sequence of independently-locked calls: two concurrent submitters
// could otherwise both observe the same EMPTY slot before either
// advances its status, clobbering one payload and stranding the other
// submitter. ClaimEmptyAndWrite holds the region mutex across the whole
// sequence to rule that out.
func (s *Scheduler) SubmitRequest(requestID string, payload []byte) (slotID int, ok bool, err error) {
	return s.region.ClaimEmptyAndWrite(requestID, payload)
}

// ClaimRequest finds the lowest-index REQUEST slot, reads its payload,
// and advances it to PROCESSING. If the payload fails to decode, the
// slot is flipped to ERROR and the scan continues from the next index
// rather than surfacing the failure to the caller.
func (s *Scheduler) ClaimRequest() (slotID int, payload Payload, ok bool, err error) {
	for {
		slotID, found, err := s.region.FindFirstWithStatus(StatusRequest)
		if err != nil {
			return 0, Payload{}, false, err
		}
		if !found {
			return 0, Payload{}, false, nil
		}

		p, err := s.region.ReadPayload(slotID)
		if err != nil {
			if errors.Is(err, ErrBusy) {
				return 0, Payload{}, false, err
			}
			// Invalid payload: mark ERROR and keep scanning. If the mark
			// attempt itself fails, the next scan finds the slot still
			// REQUEST and tries again.
			_ = s.region.SetStatus(slotID, StatusError)
			continue
		}

		advanced, err := s.region.CompareAndAdvance(slotID, StatusRequest, StatusProcessing)
		if err != nil {
			return 0, Payload{}, false, err
		}
		if !advanced {
			// Lost a race (administrative reset, or another claimer);
			// resume scanning rather than returning stale data.
			continue
		}

		return slotID, p, true, nil
	}
}

// DeliverResponse requires slotID to currently be PROCESSING, writes
// payload, and advances it to RESPONSE. On a too-large payload the slot
// is flipped to ERROR instead of staying PROCESSING.
func (s *Scheduler) DeliverResponse(slotID int, requestID string, payload []byte) error {
	status, err := s.region.Status(slotID)
	if err != nil {
		return err
	}
	if status != StatusProcessing {
		return ErrWrongState
	}

	if err := s.region.WritePayload(slotID, requestID, payload); err != nil {
		_ = s.region.SetStatus(slotID, StatusError)
		return err
	}

	return s.region.SetStatus(slotID, StatusResponse)
}

// ConsumeResponse requires slotID to currently be RESPONSE, reads its
// payload, zeroes the payload and header, and advances it to EMPTY.
// Calling it twice is safe: the second call observes EMPTY and returns
// ok=false.
func (s *Scheduler) ConsumeResponse(slotID int) (payload Payload, ok bool, err error) {
	status, err := s.region.Status(slotID)
	if err != nil {
		return Payload{}, false, err
	}
	if status != StatusResponse {
		return Payload{}, false, nil
	}

	p, err := s.region.ReadPayload(slotID)
	if err != nil {
		return Payload{}, false, err
	}

	if err := s.region.ClearPayload(slotID); err != nil {
		return Payload{}, false, err
	}
	if err := s.region.SetStatus(slotID, StatusEmpty); err != nil {
		return Payload{}, false, err
	}

	return p, true, nil
}

// MarkError unconditionally advances slotID to ERROR. Used by writers on
// unrecoverable delivery failures.
func (s *Scheduler) MarkError(slotID int) error {
	return s.region.SetStatus(slotID, StatusError)
}
