package randstr

import (
	"crypto/rand"
	"math/big"
)

type generator struct {
	letters []byte
}

func New(letters []byte) *generator {
	return &generator{letters: letters}
}

func (g generator) GenerateRandomString(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(g.letters)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = g.letters[n.Int64()]
	}

	return string(b)
}
