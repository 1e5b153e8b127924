package ingest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ledgerd/internal/ledger"
	"ledgerd/internal/trust"
	"ledgerd/pkg/canonical"
	dErrors "ledgerd/pkg/domain-errors"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/pkg/platform/sentinel"
)

// verifyRangeWorkers bounds concurrent signature checks in a bulk
// verification request.
const verifyRangeWorkers = 8

// VerifyResult reports a stored receipt's verification outcome as two
// independent checks: HashValid is the recomputed canonical hash of the
// stored payload against the hash recorded at ingestion, SignatureValid is
// the Ed25519 check against the trust store. Valid is their conjunction and
// FailedCheck names the first failed check in taxonomy order, without
// exposing key material or other tenants' data.
type VerifyResult struct {
	ReceiptID      string `json:"receipt_id"`
	HashValid      bool   `json:"hash_valid"`
	SignatureValid bool   `json:"signature_valid"`
	Valid          bool   `json:"valid"`
	FailedCheck    string `json:"failed_check,omitempty"`
	KID            string `json:"kid,omitempty"`
}

// Verify recomputes a stored receipt's payload hash and signature against
// the trust store. The receipt must belong to the calling tenant.
func (s *Service) Verify(ctx context.Context, tenantID, receiptID string) (VerifyResult, error) {
	entry, err := s.index.Get(ctx, receiptID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return VerifyResult{}, dErrors.New(dErrors.CodeNotFound, "receipt not found")
		}
		return VerifyResult{}, fmt.Errorf("load receipt %s: %w", receiptID, err)
	}
	if entry.TenantID != tenantID {
		// Indistinguishable from absence so receipt IDs cannot be probed
		// across tenants.
		return VerifyResult{}, dErrors.New(dErrors.CodeNotFound, "receipt not found")
	}

	result := VerifyResult{ReceiptID: receiptID, KID: entry.Receipt.KID}
	result.HashValid = payloadIntact(entry)
	sigErr := s.verifyTrust(entry.Receipt)
	result.SignatureValid = sigErr == nil
	result.Valid = result.HashValid && result.SignatureValid

	if result.Valid {
		s.metrics.IncrementVerify("valid")
		return result, nil
	}

	// Key resolution and revocation outrank the hash check; the hash check
	// outranks a bad signature.
	switch {
	case sigErr != nil && !errors.Is(sigErr, trust.ErrInvalidSignature):
		result.FailedCheck = trustFailureReason(sigErr)
	case !result.HashValid:
		result.FailedCheck = ReasonHashMismatch
	default:
		result.FailedCheck = trustFailureReason(sigErr)
	}
	s.metrics.IncrementVerify(result.FailedCheck)
	s.emitAudit(ctx, audit.EventTrustVerificationFailed, tenantID, receiptID, result.FailedCheck)
	return result, nil
}

// payloadIntact recomputes the canonical hash of the stored receipt body and
// compares it with the hash recorded at ingestion. Entries without a recorded
// hash pass; there is nothing to compare against.
func payloadIntact(entry ledger.Entry) bool {
	if entry.PayloadHash == "" {
		return true
	}
	body, err := entry.Receipt.SigningBytes()
	if err != nil {
		return false
	}
	return canonical.HashBytes(body) == entry.PayloadHash
}

// Owns reports whether the receipt exists and belongs to the tenant. Foreign
// receipts read as not found.
func (s *Service) Owns(ctx context.Context, tenantID, receiptID string) error {
	entry, err := s.index.Get(ctx, receiptID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "receipt not found")
		}
		return fmt.Errorf("load receipt %s: %w", receiptID, err)
	}
	if entry.TenantID != tenantID {
		return dErrors.New(dErrors.CodeNotFound, "receipt not found")
	}
	return nil
}

// VerifyRange verifies a set of receipts concurrently, preserving request
// order in the results. Individual failures are reported per item; only
// infrastructure errors fail the whole call.
func (s *Service) VerifyRange(ctx context.Context, tenantID string, receiptIDs []string) ([]VerifyResult, error) {
	results := make([]VerifyResult, len(receiptIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyRangeWorkers)
	for i, receiptID := range receiptIDs {
		g.Go(func() error {
			result, err := s.Verify(gctx, tenantID, receiptID)
			if err != nil {
				var derr *dErrors.Error
				if errors.As(err, &derr) && derr.Code == dErrors.CodeNotFound {
					results[i] = VerifyResult{ReceiptID: receiptID, FailedCheck: "not_found"}
					return nil
				}
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifySummary condenses bulk results into counts per failed check.
func VerifySummary(results []VerifyResult) map[string]int {
	summary := make(map[string]int)
	for _, r := range results {
		key := r.FailedCheck
		if r.Valid {
			key = "valid"
		}
		summary[key]++
	}
	return summary
}

