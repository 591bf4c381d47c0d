package broker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/ipcshm"
	"github.com/hak023/gemma-broker/pkg/llmengine"
)

// Options configures a Broker's worker/writer fan-out and polling
// cadence. Geometry (slot count/size) lives on the Region the caller
// constructs and passes in. Metrics is optional: a nil Metrics disables
// counter/gauge updates without affecting request handling.
type Options struct {
	WorkerCount  int
	WriterCount  int
	PollInterval time.Duration
	Metrics      *telemetry.Metrics

	// RequestSoftTimeout bounds a single model call (primary or
	// re-query). Zero uses the worker pool's built-in default.
	RequestSoftTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 1
	}
	if o.WriterCount <= 0 {
		o.WriterCount = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	return o
}

// Broker wires a slot scheduler and a model engine together: a detector
// goroutine, a worker pool, and a writer pool, connected by two bounded
// staging queues. It is constructed once per process and passed by
// reference; it holds no package-level state.
type Broker struct {
	sched   *ipcshm.Scheduler
	engine  llmengine.Engine
	opts    Options
	log     *logrus.Entry
	workers *workerPool
	writers *writerPool

	requestQueue  chan queuedItem
	responseQueue chan queuedItem
}

// New constructs a Broker. region must already be created/attached by
// the caller; its lifetime is the caller's to manage.
func New(region *ipcshm.Region, engine llmengine.Engine, opts Options, log *logrus.Entry) *Broker {
	opts = opts.withDefaults()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	sched := ipcshm.NewScheduler(region)
	requestQueue, responseQueue := newQueues(region.SlotCount())

	b := &Broker{
		sched:         sched,
		engine:        engine,
		opts:          opts,
		log:           log,
		requestQueue:  requestQueue,
		responseQueue: responseQueue,
	}
	b.workers = newWorkerPool(engine, requestQueue, responseQueue, log, opts.Metrics, opts.RequestSoftTimeout)
	b.writers = newWriterPool(sched, responseQueue, log, opts.Metrics)
	return b
}

// Run starts the detector, worker pool, and writer pool, and blocks
// until ctx is cancelled and shutdown has fully drained. Each goroutine
// finishes its current item before exiting on ctx.Done(); a slot a
// worker is actively processing when shutdown is signaled is left
// PROCESSING (the client will observe it and eventually time out). Once
// the detector, workers, and writers have all exited, a dedicated drain
// goroutine per queue marks every residual queued item's slot ERROR
// before closing that queue, so a request that was claimed or computed
// but never handed to the next stage does not strand its slot forever.
func (b *Broker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		detectorLoop(ctx, b.sched, b.requestQueue, b.opts.PollInterval, b.log.WithField("component", "detector"), b.opts.Metrics)
	}()

	for i := 0; i < b.opts.WorkerCount; i++ {
		wg.Add(1)
		go b.workers.run(ctx, &wg, i)
	}
	for i := 0; i < b.opts.WriterCount; i++ {
		wg.Add(1)
		go b.writers.run(ctx, &wg, i)
	}

	wg.Wait()

	var drainWG sync.WaitGroup
	drainWG.Add(2)
	go func() {
		defer drainWG.Done()
		drainQueue(b.requestQueue, b.sched, b.log.WithField("component", "drain-request"), b.opts.Metrics)
	}()
	go func() {
		defer drainWG.Done()
		drainQueue(b.responseQueue, b.sched, b.log.WithField("component", "drain-response"), b.opts.Metrics)
	}()
	drainWG.Wait()
}
