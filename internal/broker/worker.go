package broker

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/hak023/gemma-broker/internal/jsonrepair"
	"github.com/hak023/gemma-broker/internal/postprocess"
	"github.com/hak023/gemma-broker/internal/preprocess"
	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/llmengine"
)

// decodingProfile is the single, fixed decoding profile every analysis
// and re-query call uses.
var decodingProfile = llmengine.DecodingOptions{
	Temperature:   0.3,
	TopP:          0.8,
	TopK:          20,
	MinP:          0.1,
	RepeatPenalty: 1.05,
	Echo:          false,
}

const (
	minMaxTokens         = 500
	maxMaxTokens         = 4000
	promptOverheadTokens = 100
	lengthRetryCeiling   = 1200
)

// estimateTokens is a coarse token estimator: roughly one token per two
// Korean-dominant runes, floored at one token per four bytes for mixed
// text. It only needs to be good enough to keep max_tokens inside the
// model's context window, not exact.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	estimate := n / 2
	if byBytes := len(s) / 4; byBytes > estimate {
		estimate = byBytes
	}
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func dynamicMaxTokens(contextWindow int, prompt string) int {
	budget := contextWindow - estimateTokens(prompt) - promptOverheadTokens
	if budget > maxMaxTokens {
		budget = maxMaxTokens
	}
	if budget < minMaxTokens {
		budget = minMaxTokens
	}
	return budget
}

// workerPool runs n worker goroutines that turn queued requests into
// queued responses.
type workerPool struct {
	engine             llmengine.Engine
	modelMu            sync.Mutex // serializes model calls across workers
	requestQueue       <-chan queuedItem
	responseQueue      chan<- queuedItem
	log                *logrus.Entry
	metrics            *telemetry.Metrics
	requestSoftTimeout time.Duration
}

func newWorkerPool(engine llmengine.Engine, requestQueue <-chan queuedItem, responseQueue chan<- queuedItem, log *logrus.Entry, metrics *telemetry.Metrics, requestSoftTimeout time.Duration) *workerPool {
	if requestSoftTimeout <= 0 {
		requestSoftTimeout = defaultRequestSoftTimeout
	}
	return &workerPool{engine: engine, requestQueue: requestQueue, responseQueue: responseQueue, log: log, metrics: metrics, requestSoftTimeout: requestSoftTimeout}
}

func (wp *workerPool) run(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	log := wp.log.WithField("worker_id", workerID)
	for {
		select {
		case item, open := <-wp.requestQueue:
			if !open {
				return
			}
			wp.process(ctx, item, log)
		case <-ctx.Done():
			return
		}
	}
}

// process turns one queued request into one queued response. It never
// panics out of the loop: any panic from the pipeline below is recovered
// and translated into a failure response, matching workers that never
// throw out of their loop.
func (wp *workerPool) process(ctx context.Context, item queuedItem, log *logrus.Entry) {
	var out queuedItem
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "worker", "panic")).WithField("panic", r).Error("recovered from panic while processing request")
				wp.recordError(telemetry.ErrorKindModel)
				out = wp.buildFailure(item, outcome{kind: outcomeModelFailure, reason: "internal error"})
			}
		}()
		out = wp.processInner(ctx, item, log)
	}()

	select {
	case wp.responseQueue <- out:
		if wp.metrics != nil {
			wp.metrics.ResponseQueueDepth.Set(float64(len(wp.responseQueue)))
		}
	case <-ctx.Done():
	}
}

// recordError increments the errors-by-kind counter when metrics are
// configured; a nil metrics handle is a silent no-op.
func (wp *workerPool) recordError(kind telemetry.ErrorKind) {
	if wp.metrics != nil {
		wp.metrics.Record(kind)
	}
}

func (wp *workerPool) processInner(ctx context.Context, item queuedItem, log *logrus.Entry) queuedItem {
	req, err := parseRequest(item.payload)
	if err != nil {
		log.WithFields(telemetry.StageFields(item.requestID, item.slotID, "worker", "parse_error")).WithError(err).Warn("malformed request envelope")
		wp.recordError(telemetry.ErrorKindParse)
		return wp.buildFailureRaw(item, req, outcome{kind: outcomeParseFailure, reason: "malformed request"})
	}

	dialogue := req.Text
	if len(req.STTResultList) > 0 {
		segments := make([]preprocess.Segment, len(req.STTResultList))
		for i, s := range req.STTResultList {
			segments[i] = preprocess.Segment{Transcript: s.Transcript, RecType: s.RecType}
		}
		dialogue = preprocess.Preprocess(segments)
	}
	if strings.TrimSpace(dialogue) == "" {
		dialogue = "대화 내용이 없습니다."
	}

	prompt := buildAnalysisPrompt(dialogue)
	maxTokens := dynamicMaxTokens(wp.engine.ContextWindow(), prompt)

	result, err := wp.complete(ctx, prompt, maxTokens)
	if err != nil {
		log.WithFields(telemetry.StageFields(req.RequestID, item.slotID, "worker", "model_error")).WithError(err).Warn("model call failed")
		wp.recordError(telemetry.ErrorKindModel)
		return wp.buildFailure(item, outcome{kind: outcomeModelFailure, reason: "model call failed"})
	}

	if result.FinishReason == llmengine.FinishLength && maxTokens < lengthRetryCeiling {
		retryTokens := maxTokens * 2
		if retryTokens > maxMaxTokens {
			retryTokens = maxMaxTokens
		}
		result, err = wp.complete(ctx, prompt, retryTokens)
		if err != nil {
			log.WithFields(telemetry.StageFields(req.RequestID, item.slotID, "worker", "model_error")).WithError(err).Warn("retry model call failed")
			wp.recordError(telemetry.ErrorKindModel)
			return wp.buildFailure(item, outcome{kind: outcomeModelFailure, reason: "model call failed"})
		}
	}

	raw := jsonrepair.Extract(result.Text)
	artifact := postprocess.Normalize(raw)

	if strings.HasPrefix(artifact.Summary, postprocess.RequeryPrefix) {
		artifact.Summary = wp.requery(ctx, artifact.Summary, req.RequestID, item.slotID, log)
	}

	resp := successResponse(req, artifact)
	payload, err := encodeResponse(resp)
	if err != nil {
		log.WithFields(telemetry.StageFields(req.RequestID, item.slotID, "worker", "encode_error")).WithError(err).Error("failed to encode response")
		wp.recordError(telemetry.ErrorKindInvariant)
		return wp.buildFailureRaw(item, req, outcome{kind: outcomeModelFailure, reason: "internal error"})
	}
	log.WithFields(telemetry.StageFields(req.RequestID, item.slotID, "worker", "success")).Debug("produced artifact")
	return queuedItem{slotID: item.slotID, requestID: item.requestID, payload: payload}
}

// requery runs the short noun-phrase re-summarization call and applies
// only the noun-form rewrite to its result, never the length gate, so
// the prefix this function was called to remove cannot recur.
func (wp *workerPool) requery(ctx context.Context, prefixed, requestID string, slotID int, log *logrus.Entry) string {
	previous := strings.TrimPrefix(prefixed, postprocess.RequeryPrefix)
	prompt := buildRequeryPrompt(previous)
	maxTokens := dynamicMaxTokens(wp.engine.ContextWindow(), prompt)

	if wp.metrics != nil {
		wp.metrics.RequeryInvocations.Inc()
	}
	result, err := wp.complete(ctx, prompt, maxTokens)
	if err != nil {
		log.WithFields(telemetry.StageFields(requestID, slotID, "requery", "model_error")).WithError(err).Warn("re-query call failed, keeping truncation marker")
		wp.recordError(telemetry.ErrorKindModel)
		return prefixed
	}
	log.WithFields(telemetry.StageFields(requestID, slotID, "requery", "success")).Debug("re-query shrank oversized summary")
	return postprocess.ApplyNounFormOnly(result.Text)
}

func (wp *workerPool) complete(ctx context.Context, prompt string, maxTokens int) (llmengine.Result, error) {
	opts := decodingProfile
	opts.MaxTokens = maxTokens

	wp.modelMu.Lock()
	defer wp.modelMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, wp.requestSoftTimeout)
	defer cancel()
	return wp.engine.Complete(callCtx, prompt, opts)
}

func (wp *workerPool) buildFailure(item queuedItem, out outcome) queuedItem {
	req, err := parseRequest(item.payload)
	if err != nil {
		req = request{}
	}
	return wp.buildFailureRaw(item, req, out)
}

func (wp *workerPool) buildFailureRaw(item queuedItem, req request, out outcome) queuedItem {
	resp := failureResponse(req, out)
	payload, err := encodeResponse(resp)
	if err != nil {
		// encodeResponse only fails on a type it cannot marshal; our
		// response type is always marshalable, so this is unreachable
		// in practice. Fall back to a minimal literal rather than panic.
		payload = []byte(`{"returncode":"1","returndescription":"Success","response":{"result":"1","failReason":"internal error","summary":""}}`)
	}
	return queuedItem{slotID: item.slotID, requestID: item.requestID, payload: payload}
}

// defaultRequestSoftTimeout bounds a single model call when the caller
// does not configure one. The bound is a deadline on the call's context;
// whether in-flight inference stops at it is up to the engine (Mock only
// checks the context before it responds).
const defaultRequestSoftTimeout = 300 * time.Second
