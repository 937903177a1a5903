package delivery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidQRToken = errors.New("invalid qr token")

// QRPayload is what a door scanner recovers from a ticket code.
type QRPayload struct {
	TicketID string `json:"tid"`
	EventID  string `json:"eid"`
	Code     string `json:"code"`
	Seat     int    `json:"seat"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// Token seals the payload with AES-GCM and encodes it URL-safe.
func (q *QRGenerator) Token(p QRPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	gcm, err := q.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token produced by Token.
func (q *QRGenerator) Decode(token string) (QRPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return QRPayload{}, ErrInvalidQRToken
	}
	gcm, err := q.aead()
	if err != nil {
		return QRPayload{}, err
	}
	if len(raw) < gcm.NonceSize() {
		return QRPayload{}, ErrInvalidQRToken
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return QRPayload{}, ErrInvalidQRToken
	}

	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return QRPayload{}, ErrInvalidQRToken
	}
	return p, nil
}

// PNG renders the encrypted payload as a 256px QR image.
func (q *QRGenerator) PNG(p QRPayload) ([]byte, error) {
	token, err := q.Token(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
