package broker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/ipcshm"
)

// detectorLoop repeatedly claims REQUEST slots and hands them to
// requestQueue. It exits when ctx is done, draining nothing itself: any
// slot it never claimed simply stays REQUEST until the next run.
func detectorLoop(ctx context.Context, sched *ipcshm.Scheduler, requestQueue chan<- queuedItem, pollInterval time.Duration, log *logrus.Entry, metrics *telemetry.Metrics) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		slotID, payload, ok, err := sched.ClaimRequest()
		if err != nil {
			log.WithFields(telemetry.StageFields("", slotID, "claim", "busy")).WithError(err).Warn("claim attempt failed")
			if metrics != nil {
				metrics.Record(telemetry.ErrorKindTransport)
			}
		} else if ok {
			item := queuedItem{slotID: slotID, requestID: payload.RequestID, payload: payload.Data}
			select {
			case requestQueue <- item:
				log.WithFields(telemetry.StageFields(payload.RequestID, slotID, "detect", "claimed")).Debug("claimed request")
				if metrics != nil {
					metrics.RequestsClaimed.Inc()
					metrics.RequestQueueDepth.Set(float64(len(requestQueue)))
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
