// Package broker wires the shared-memory IPC substrate, the JSON repair
// pipeline, and the post-processing pipeline into a running pipeline:
// detector → request queue → worker pool → response queue → writer pool.
package broker

import (
	"encoding/json"
	"fmt"

	"github.com/hak023/gemma-broker/internal/postprocess"
)

// sttSegment is one raw STT line in a request's sttResultList.
type sttSegment struct {
	Transcript string `json:"transcript"`
	RecType    int    `json:"recType"`
}

// request is the decoded form of a slot's REQUEST payload. Exactly one of
// Text or STTResultList is expected to carry content; if both are empty
// the dialogue resolves to the preprocessor's empty-input sentinel.
type request struct {
	RequestID     string       `json:"request_id"`
	TransactionID string       `json:"transactionid"`
	SequenceNo    string       `json:"sequenceno"`
	Text          string       `json:"text"`
	Timestamp     float64      `json:"timestamp"`
	STTResultList []sttSegment `json:"sttResultList"`
}

// parseRequest decodes raw into a request envelope.
func parseRequest(raw []byte) (request, error) {
	var r request
	if err := json.Unmarshal(raw, &r); err != nil {
		return request{}, fmt.Errorf("broker: decode request: %w", err)
	}
	return r, nil
}

// response is the encoded form of a slot's RESPONSE payload.
type response struct {
	TransactionID     string      `json:"transactionid"`
	SequenceNo        string      `json:"sequenceno"`
	ReturnCode        string      `json:"returncode"`
	ReturnDescription string      `json:"returndescription"`
	Response          innerResult `json:"response"`
}

type innerResult struct {
	Result     string `json:"result"`
	FailReason string `json:"failReason"`
	Summary    any    `json:"summary"`
}

const (
	resultSuccess = "0"
	resultFailure = "1"
)

// successResponse builds the wire response for a fully processed artifact.
func successResponse(req request, artifact postprocess.Artifact) response {
	return response{
		TransactionID:     req.TransactionID,
		SequenceNo:        req.SequenceNo,
		ReturnCode:        "1",
		ReturnDescription: "Success",
		Response: innerResult{
			Result:  resultSuccess,
			Summary: artifact,
		},
	}
}

// failureResponse builds the wire response for a request that could not
// be turned into an artifact. Transport-level returncode/returndescription
// stay "1"/"Success": the slot protocol itself did not fail, only the
// analysis did.
func failureResponse(req request, out outcome) response {
	return response{
		TransactionID:     req.TransactionID,
		SequenceNo:        req.SequenceNo,
		ReturnCode:        "1",
		ReturnDescription: "Success",
		Response: innerResult{
			Result:     resultFailure,
			FailReason: out.reason,
			Summary:    "",
		},
	}
}

func encodeResponse(r response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("broker: encode response: %w", err)
	}
	return b, nil
}
