package command

import (
	"crypto/rand"
	"math/big"
)

// Source produces random integers for commands such as roll.
type Source interface {
	// Intn returns a value in [0, n). n must be positive.
	Intn(n int) int
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn panics if n <= 0 or crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("command: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("command: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}
