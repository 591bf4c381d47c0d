package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hak023/gemma-broker/pkg/ipcshm"
	"github.com/hak023/gemma-broker/pkg/llmengine"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func newTestRegion(t *testing.T) *ipcshm.Region {
	t.Helper()
	r, err := ipcshm.Create("broker_test_region", ipcshm.Options{
		SlotCount: 8,
		SlotSize:  4096,
		Dir:       t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func submit(t *testing.T, sched *ipcshm.Scheduler, req map[string]any) int {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	requestID, _ := req["request_id"].(string)
	slotID, ok, err := sched.SubmitRequest(requestID, b)
	require.NoError(t, err)
	require.True(t, ok)
	return slotID
}

func awaitResponse(t *testing.T, sched *ipcshm.Scheduler, slotID int) ipcshm.Payload {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, ok, err := sched.ConsumeResponse(slotID)
		require.NoError(t, err)
		if ok {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("slot %d never reached RESPONSE", slotID)
	return ipcshm.Payload{}
}

func TestBrokerHappyPath(t *testing.T) {
	region := newTestRegion(t)
	mock := llmengine.NewMock(4096, func(prompt string, _ llmengine.DecodingOptions) llmengine.Result {
		return llmengine.Result{
			Text:         `{"summary":"카드 발급 안내","keyword":"카드,발급,안내","paragraphs":[{"summary":"고객 문의 접수","keyword":"문의","sentiment":"약한긍정"}]}`,
			FinishReason: llmengine.FinishStop,
		}
	})

	b := New(region, mock, Options{PollInterval: 20 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{
		"request_id":    "req-1",
		"transactionid": "tx-1",
		"sequenceno":    "1",
		"text":          "고객이 카드 발급을 문의했습니다.",
	})

	payload := awaitResponse(t, sched, slotID)
	var resp response
	require.NoError(t, json.Unmarshal(payload.Data, &resp))
	require.Equal(t, "1", resp.ReturnCode)
	require.Equal(t, resultSuccess, resp.Response.Result)
}

func TestBrokerTooLargePayloadMarksSlotError(t *testing.T) {
	region := newTestRegion(t)
	huge := ""
	for i := 0; i < 5000; i++ {
		huge += "내용"
	}
	mock := llmengine.NewMock(4096, func(prompt string, _ llmengine.DecodingOptions) llmengine.Result {
		return llmengine.Result{Text: fmt.Sprintf(`{"summary":%q,"keyword":"k","paragraphs":[]}`, huge), FinishReason: llmengine.FinishStop}
	})

	b := New(region, mock, Options{PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{"request_id": "req-2", "text": "t"})

	deadline := time.Now().Add(5 * time.Second)
	var status ipcshm.SlotStatus
	for time.Now().Before(deadline) {
		var err error
		status, err = region.Status(slotID)
		require.NoError(t, err)
		if status == ipcshm.StatusResponse || status == ipcshm.StatusError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, ipcshm.StatusError, status)
}

func TestBrokerDeliveryFailureMarksSlotError(t *testing.T) {
	region, err := ipcshm.Create("broker_test_small_region", ipcshm.Options{
		SlotCount: 4,
		SlotSize:  128,
		Dir:       t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })

	mock := llmengine.NewMock(4096, llmengine.EchoResponder)
	b := New(region, mock, Options{PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{"request_id": "req-small", "text": "충분히 긴 대화 내용이 포함된 요청입니다"})

	deadline := time.Now().Add(5 * time.Second)
	var status ipcshm.SlotStatus
	for time.Now().Before(deadline) {
		var err error
		status, err = region.Status(slotID)
		require.NoError(t, err)
		if status == ipcshm.StatusResponse || status == ipcshm.StatusError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, ipcshm.StatusError, status)
}

func TestBrokerGarbageFencedBlockStillYieldsArtifact(t *testing.T) {
	region := newTestRegion(t)
	mock := llmengine.NewMock(4096, func(prompt string, _ llmengine.DecodingOptions) llmengine.Result {
		return llmengine.Result{
			Text:         "여기 결과입니다 ```json\n{\"summary\": \"문의 접수\", \"keyword\": \"접수\",,, \"paragraphs\": [}",
			FinishReason: llmengine.FinishStop,
		}
	})

	b := New(region, mock, Options{PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{"request_id": "req-3", "text": "t"})

	payload := awaitResponse(t, sched, slotID)
	var resp response
	require.NoError(t, json.Unmarshal(payload.Data, &resp))
	require.Equal(t, resultSuccess, resp.Response.Result)
}

func TestBrokerConcurrentProducers(t *testing.T) {
	region := newTestRegion(t)
	mock := llmengine.NewMock(4096, llmengine.EchoResponder)

	b := New(region, mock, Options{WorkerCount: 2, WriterCount: 2, PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	const n = 6
	slots := make([]int, n)
	for i := 0; i < n; i++ {
		slots[i] = submit(t, sched, map[string]any{"request_id": fmt.Sprintf("req-%d", i), "text": fmt.Sprintf("대화 %d", i)})
	}
	for _, slotID := range slots {
		awaitResponse(t, sched, slotID)
	}
}

func TestBrokerSTTPreprocessingFeedsWorker(t *testing.T) {
	region := newTestRegion(t)
	var capturedPrompt string
	mock := llmengine.NewMock(4096, func(prompt string, _ llmengine.DecodingOptions) llmengine.Result {
		capturedPrompt = prompt
		return llmengine.Result{Text: `{"summary":"문의 처리","keyword":"문의","paragraphs":[]}`, FinishReason: llmengine.FinishStop}
	})

	b := New(region, mock, Options{PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{
		"request_id": "req-stt",
		"sttResultList": []map[string]any{
			{"transcript": "안녕하세요", "recType": 4},
			{"transcript": "네 문의사항 있습니다", "recType": 2},
		},
	})
	awaitResponse(t, sched, slotID)
	require.Contains(t, capturedPrompt, "나 > 안녕하세요")
	require.Contains(t, capturedPrompt, "상대방 > 네 문의사항 있습니다")
}

func TestBrokerRequeryShrinksOversizedSummary(t *testing.T) {
	region := newTestRegion(t)
	long := ""
	for i := 0; i < 30; i++ {
		long += "가나다라"
	}
	calls := 0
	mock := llmengine.NewMock(4096, func(prompt string, _ llmengine.DecodingOptions) llmengine.Result {
		calls++
		if calls == 1 {
			return llmengine.Result{Text: fmt.Sprintf(`{"summary":%q,"keyword":"k","paragraphs":[]}`, long), FinishReason: llmengine.FinishStop}
		}
		return llmengine.Result{Text: "짧은 요약", FinishReason: llmengine.FinishStop}
	})

	b := New(region, mock, Options{PollInterval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer cancel()

	sched := ipcshm.NewScheduler(region)
	slotID := submit(t, sched, map[string]any{"request_id": "req-requery", "text": "t"})

	payload := awaitResponse(t, sched, slotID)
	var resp response
	require.NoError(t, json.Unmarshal(payload.Data, &resp))
	summary, ok := resp.Response.Summary.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "짧은 요약", summary["summary"])
	require.Equal(t, 2, calls)
}
