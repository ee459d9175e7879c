package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewPaymentStartsPreAuthorized(t *testing.T) {
	payment := NewPayment(uuid.New(), 30.00, "pa_ref")

	if payment.Status != PaymentStatusPreAuthorized {
		t.Errorf("expected PRE_AUTHORIZED, got %s", payment.Status)
	}
	if payment.IsTerminal() {
		t.Error("fresh payment must not be terminal")
	}
}

func TestMarkCapturedOnlyFromPreAuthorized(t *testing.T) {
	payment := NewPayment(uuid.New(), 30.00, "pa_ref")

	if err := payment.MarkCaptured(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := payment.MarkCaptured(); err == nil {
		t.Error("second capture should fail")
	}
	if err := payment.MarkFailed("late decline"); err == nil {
		t.Error("failing a captured payment should be rejected")
	}
}

func TestMarkFailedRecordsReason(t *testing.T) {
	payment := NewPayment(uuid.New(), 30.00, "pa_ref")

	if err := payment.MarkFailed("card expired"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.FailureReason != "card expired" {
		t.Errorf("reason not recorded, got %q", payment.FailureReason)
	}
	if err := payment.MarkCaptured(); err == nil {
		t.Error("capturing a failed payment should be rejected")
	}
}
