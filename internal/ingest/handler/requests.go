package handler

import "encoding/json"

// BatchRequest carries up to batchMaxItems raw receipts. Items are kept raw
// so one malformed receipt dead-letters alone instead of failing the decode
// of the whole batch.
type BatchRequest struct {
	Receipts []json.RawMessage `json:"receipts"`
}

// VerifyRangeRequest names the receipts to verify in bulk.
type VerifyRangeRequest struct {
	ReceiptIDs []string `json:"receipt_ids"`
}
