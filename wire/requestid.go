package wire

import (
	"crypto/rand"
	"math/big"
)

const requestIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewRequestID returns a random request id of RequestIDSize ASCII letters.
func NewRequestID() string {
	limit := big.NewInt(int64(len(requestIDAlphabet)))
	id := make([]byte, RequestIDSize)
	for i := range id {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		id[i] = requestIDAlphabet[n.Int64()]
	}
	return string(id)
}
