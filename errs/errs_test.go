package errs_test

import (
	"strings"
	"testing"

	"github.com/omnilayer/omnicore/errs"
)

func TestTxErrorFormatting(t *testing.T) {
	err := errs.New(errs.FamilySend, errs.CodeSendFrozen, "sender is frozen")
	msg := err.Error()
	if !strings.Contains(msg, "sender is frozen") {
		t.Fatalf("expected the reason in the error message, got %q", msg)
	}
	if !strings.Contains(msg, "send") {
		t.Fatalf("expected the family in the error message, got %q", msg)
	}
}

func TestConsistencyErrorIsDistinctFromTxError(t *testing.T) {
	var err error = errs.NewConsistency("NFT total mismatch")
	if _, ok := err.(*errs.TxError); ok {
		t.Fatalf("a ConsistencyError must never satisfy the ordinary TxError path")
	}
	ce, ok := err.(*errs.ConsistencyError)
	if !ok {
		t.Fatalf("expected a *ConsistencyError")
	}
	if ce.Reason != "NFT total mismatch" {
		t.Fatalf("unexpected reason: %q", ce.Reason)
	}
}
