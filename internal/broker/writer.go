package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/ipcshm"
)

// writerPool drains responseQueue and delivers each payload back into
// its slot. It has no policy of its own: a delivery failure marks the
// slot ERROR and moves on.
type writerPool struct {
	sched         *ipcshm.Scheduler
	responseQueue <-chan queuedItem
	log           *logrus.Entry
	metrics       *telemetry.Metrics
}

func newWriterPool(sched *ipcshm.Scheduler, responseQueue <-chan queuedItem, log *logrus.Entry, metrics *telemetry.Metrics) *writerPool {
	return &writerPool{sched: sched, responseQueue: responseQueue, log: log, metrics: metrics}
}

func (wr *writerPool) run(ctx context.Context, wg *sync.WaitGroup, writerID int) {
	defer wg.Done()
	log := wr.log.WithField("writer_id", writerID)
	for {
		select {
		case item, open := <-wr.responseQueue:
			if !open {
				return
			}
			if wr.metrics != nil {
				wr.metrics.ResponseQueueDepth.Set(float64(len(wr.responseQueue)))
			}
			if err := wr.sched.DeliverResponse(item.slotID, item.requestID, item.payload); err != nil {
				log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "write", "delivery_error")).WithError(err).Warn("delivery failed, marking slot error")
				if wr.metrics != nil {
					wr.metrics.Record(writerErrorKind(err))
				}
				if markErr := wr.sched.MarkError(item.slotID); markErr != nil {
					log.WithError(markErr).WithField("slot_id", item.slotID).Error("failed to mark slot error")
				}
				continue
			}
			log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "write", "delivered")).Debug("delivered response")
			if wr.metrics != nil {
				wr.metrics.ResponsesDelivered.Inc()
			}
		case <-ctx.Done():
			return
		}
	}
}

// writerErrorKind classifies a DeliverResponse failure for the
// errors-by-kind counter: a precondition violation on slot status is an
// invariant break, everything else (too-large payload, busy mutex) is a
// transport-level failure.
func writerErrorKind(err error) telemetry.ErrorKind {
	if errors.Is(err, ipcshm.ErrWrongState) || errors.Is(err, ipcshm.ErrSlotOutOfRange) {
		return telemetry.ErrorKindInvariant
	}
	return telemetry.ErrorKindTransport
}
