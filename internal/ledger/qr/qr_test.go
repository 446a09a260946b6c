package qr

import (
	"bytes"
	"errors"
	"testing"

	"campus-loyalty/internal/models"
)

func pendingRedemption() models.Transaction {
	return models.Transaction{
		ID:     42,
		Type:   models.TransactionRedemption,
		UserID: 7,
		Amount: -60,
	}
}

func TestRedemptionQRGeneratesPNG(t *testing.T) {
	g := NewGenerator("test-secret")

	png, err := g.RedemptionQR(pendingRedemption())
	if err != nil {
		t.Fatalf("RedemptionQR failed: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("expected non-empty PNG output")
	}
	// PNG magic bytes.
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestRedemptionQRDiffersAcrossSecrets(t *testing.T) {
	trx := pendingRedemption()

	png1, err := NewGenerator("secret-one").RedemptionQR(trx)
	if err != nil {
		t.Fatalf("RedemptionQR failed: %v", err)
	}
	png2, err := NewGenerator("secret-two").RedemptionQR(trx)
	if err != nil {
		t.Fatalf("RedemptionQR failed: %v", err)
	}
	if bytes.Equal(png1, png2) {
		t.Fatal("expected different codes under different secrets")
	}
}

func TestRedemptionQRRejectsNonRedemption(t *testing.T) {
	g := NewGenerator("test-secret")

	trx := pendingRedemption()
	trx.Type = models.TransactionPurchase
	trx.Amount = 40

	if _, err := g.RedemptionQR(trx); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRedemptionQRRejectsProcessed(t *testing.T) {
	g := NewGenerator("test-secret")

	trx := pendingRedemption()
	cashierID := int64(3)
	trx.ProcessedBy = &cashierID

	if _, err := g.RedemptionQR(trx); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
