package types

import "encoding/json"

// ReceiptStatus reports whether a call committed.
type ReceiptStatus uint8

const (
	ReceiptFailed  ReceiptStatus = 0
	ReceiptSuccess ReceiptStatus = 1
)

// Receipt is the outcome of one executed call. Failed calls carry the error
// code and kind and no events.
type Receipt struct {
	TxHash string          `json:"txHash,omitempty"`
	Height uint64          `json:"height"`
	Caller string          `json:"caller"`
	Module string          `json:"module"`
	Method string          `json:"method"`
	Status ReceiptStatus   `json:"status"`
	Code   uint32          `json:"code,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Events []Event         `json:"events,omitempty"`
}

// Succeeded reports whether the call committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptSuccess
}
