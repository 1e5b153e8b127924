package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/chain"
	"ledgerd/internal/ingest"
	"ledgerd/internal/ledger"
	"ledgerd/internal/platform/logger"
	"ledgerd/internal/ratelimit"
	dErrors "ledgerd/pkg/domain-errors"
	"ledgerd/pkg/platform/middleware/auth"
	"ledgerd/pkg/testutil"
)

type fakeService struct {
	ingestResult  ingest.Result
	batchStatus   ingest.BatchStatus
	batchResults  []ingest.Result
	verifyResult  ingest.VerifyResult
	verifyErr     error
	ownsErr       error
	rangeRequests [][]string
}

func (f *fakeService) Ingest(_ context.Context, _ string, _ json.RawMessage) ingest.Result {
	return f.ingestResult
}

func (f *fakeService) IngestBatch(_ context.Context, _ string, _ []json.RawMessage) (ingest.BatchStatus, []ingest.Result) {
	return f.batchStatus, f.batchResults
}

func (f *fakeService) Verify(_ context.Context, _, _ string) (ingest.VerifyResult, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeService) VerifyRange(_ context.Context, _ string, ids []string) ([]ingest.VerifyResult, error) {
	f.rangeRequests = append(f.rangeRequests, ids)
	out := make([]ingest.VerifyResult, len(ids))
	for i, id := range ids {
		out[i] = ingest.VerifyResult{ReceiptID: id, Valid: true}
	}
	return out, nil
}

func (f *fakeService) Owns(_ context.Context, _, _ string) error {
	return f.ownsErr
}

type fakeTraverser struct {
	up   chain.Result
	down [][]ledger.Entry
}

func (f *fakeTraverser) TraverseUp(_ context.Context, _ string) (chain.Result, error) {
	return f.up, nil
}

func (f *fakeTraverser) TraverseDown(_ context.Context, _ string) ([][]ledger.Entry, error) {
	return f.down, nil
}

func newRouter(service Service, chains Traverser, limiter *ratelimit.SlidingWindowLimiter) http.Handler {
	r := chi.NewRouter()
	New(service, chains, limiter, logger.New()).Register(r)
	return r
}

func TestIngestAccepted(t *testing.T) {
	service := &fakeService{ingestResult: ingest.Result{ReceiptID: "r1", Accepted: true}}
	router := newRouter(service, &fakeTraverser{}, nil)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/receipts", `{"receipt_id":"r1"}`)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceWrite))

	require.Equal(t, http.StatusAccepted, rr.Code)
	result := testutil.DecodeResponse[ingest.Result](t, rr)
	assert.True(t, result.Accepted)
}

func TestIngestDeadLetteredReturns422(t *testing.T) {
	service := &fakeService{ingestResult: ingest.Result{Reason: ingest.ReasonSchemaInvalid}}
	router := newRouter(service, &fakeTraverser{}, nil)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/receipts", `{}`)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceWrite))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestIngestRequiresWritePermission(t *testing.T) {
	router := newRouter(&fakeService{}, &fakeTraverser{}, nil)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/receipts", `{}`)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceRead))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIngestRequiresTenant(t *testing.T) {
	router := newRouter(&fakeService{}, &fakeTraverser{}, nil)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/receipts", `{}`)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "", auth.PermEvidenceWrite))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBatchRejectsEmpty(t *testing.T) {
	router := newRouter(&fakeService{}, &fakeTraverser{}, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/receipts/batch", BatchRequest{})
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceWrite))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchPartialStatus(t *testing.T) {
	service := &fakeService{
		batchStatus: ingest.BatchPartial,
		batchResults: []ingest.Result{
			{ReceiptID: "r1", Accepted: true},
			{Reason: ingest.ReasonSchemaInvalid},
		},
	}
	router := newRouter(service, &fakeTraverser{}, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/receipts/batch", BatchRequest{
		Receipts: []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)},
	})
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceWrite))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.DecodeResponse[BatchResponse](t, rr)
	assert.Equal(t, ingest.BatchPartial, resp.Status)
	assert.Len(t, resp.Results, 2)
}

func TestVerifyRangeRateLimited(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(1, time.Minute)
	router := newRouter(&fakeService{}, &fakeTraverser{}, limiter)

	body := VerifyRangeRequest{ReceiptIDs: []string{"r1", "r2"}}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/receipts/verify_range", body)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceRead))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestVerifyRangeOK(t *testing.T) {
	service := &fakeService{}
	router := newRouter(service, &fakeTraverser{}, ratelimit.NewSlidingWindow(100, time.Minute))

	req := testutil.NewJSONRequest(t, http.MethodPost, "/receipts/verify_range", VerifyRangeRequest{
		ReceiptIDs: []string{"r1", "r2"},
	})
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceRead))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.DecodeResponse[VerifyRangeResponse](t, rr)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.Summary["valid"])
}

func TestChainUnknownReceipt(t *testing.T) {
	service := &fakeService{ownsErr: dErrors.New(dErrors.CodeNotFound, "receipt not found")}
	router := newRouter(service, &fakeTraverser{}, nil)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/receipts/ghost/chain", nil)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceRead))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChainBadDirection(t *testing.T) {
	router := newRouter(&fakeService{}, &fakeTraverser{}, nil)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/receipts/r1/chain?direction=sideways", nil)
	rr := testutil.DoRequest(router, testutil.WithAuth(req, "acme", auth.PermEvidenceRead))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
