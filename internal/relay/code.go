package relay

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeAlphabet omits 0/O and 1/I so codes survive being read aloud.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// GenerateRoomCode returns a random code of CodeLength characters from CodeAlphabet.
func GenerateRoomCode() string {
	limit := big.NewInt(int64(len(CodeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err)
		}
		b[i] = CodeAlphabet[n.Int64()]
	}
	return string(b)
}

// NormalizeCode canonicalizes user input for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
