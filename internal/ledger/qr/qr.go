// Package qr renders pending redemptions as encrypted QR codes a user can
// show at the register. The payload is AES-encrypted so a screenshot cannot
// be forged into a different redemption id.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"campus-loyalty/internal/models"

	"github.com/skip2/go-qrcode"
)

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

type redemptionPayload struct {
	TransactionID int64     `json:"transactionId"`
	UserID        int64     `json:"userId"`
	Amount        int       `json:"amount"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// RedemptionQR encodes an unprocessed redemption as a QR PNG.
func (g *Generator) RedemptionQR(trx models.Transaction) ([]byte, error) {
	if trx.Type != models.TransactionRedemption {
		return nil, fmt.Errorf("transaction %d is not a redemption: %w", trx.ID, models.ErrInvalidInput)
	}
	if trx.ProcessedBy != nil {
		return nil, fmt.Errorf("redemption %d already processed: %w", trx.ID, models.ErrInvalidState)
	}

	payload := redemptionPayload{
		TransactionID: trx.ID,
		UserID:        trx.UserID,
		Amount:        -trx.Amount,
		IssuedAt:      time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
