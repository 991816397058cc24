// Package randname generates the random alphanumeric names used for
// temp files in the sync directory.
package randname

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns a random alphanumeric string of the given length,
// suitable for a temp file name in the target directory. Uses
// crypto/rand rather than math/rand: temp names collide with real sync
// traffic if predictable, and this is cheap to get right.
func Generate(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// TempName returns a 10-character random name for a temp file created in
// the sync directory.
func TempName() (string, error) {
	return Generate(10)
}
