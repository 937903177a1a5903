package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	TicketCodePrefix = "TICKET-"
	ticketCodeLength = 12
	base36           = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewID returns a random UUID v4 string.
func NewID() string {
	return uuid.NewString()
}

// GenerateTicketCode returns TICKET- followed by 12 crypto-random base36 characters.
func GenerateTicketCode() (string, error) {
	var b strings.Builder
	b.Grow(len(TicketCodePrefix) + ticketCodeLength)
	b.WriteString(TicketCodePrefix)
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < ticketCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(base36[n.Int64()])
	}
	return b.String(), nil
}

// GenerateTicketCodes returns n distinct codes.
func GenerateTicketCodes(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	for len(codes) < n {
		c, err := GenerateTicketCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes, nil
}
