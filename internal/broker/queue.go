package broker

import (
	"github.com/sirupsen/logrus"

	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/ipcshm"
)

// queuedItem moves a slot's payload between the detector, worker pool,
// and writer pool without touching the region again until the owning
// stage is ready to act on it.
type queuedItem struct {
	slotID    int
	requestID string
	payload   []byte
}

// newQueues allocates the two bounded staging channels, each sized to
// slotCount so a fully-occupied region can never deadlock a producer.
func newQueues(slotCount int) (requestQueue, responseQueue chan queuedItem) {
	return make(chan queuedItem, slotCount), make(chan queuedItem, slotCount)
}

// drainQueue empties queue of any buffered items, marking each one's
// slot ERROR, then closes queue. Call only once every goroutine that
// could still send on queue has exited, so closing cannot race a send.
func drainQueue(queue chan queuedItem, sched *ipcshm.Scheduler, log *logrus.Entry, metrics *telemetry.Metrics) {
	for {
		select {
		case item := <-queue:
			if err := sched.MarkError(item.slotID); err != nil {
				log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "drain", "mark_error_failed")).WithError(err).Warn("failed to mark slot ERROR during shutdown drain")
				continue
			}
			log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "drain", "abandoned")).Warn("marked slot ERROR: in-flight item abandoned at shutdown")
			if metrics != nil {
				metrics.Record(telemetry.ErrorKindInvariant)
			}
		default:
			close(queue)
			return
		}
	}
}
