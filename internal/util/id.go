package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewUUID returns a random v4 uuid for users, templates and files.
func NewUUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a uuid.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// RandomCode returns prefix followed by n upper-case alphanumerics, as in
// file codes ("F-7K2Q9A").
func RandomCode(prefix string, n int) string {
	out := make([]byte, n)
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, base)
		if err != nil {
			panic(err)
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return prefix + string(out)
}

// ShareToken returns a public share token: "sh_" and 18 random bytes,
// url-safe base64.
func ShareToken() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return "sh_" + base64.RawURLEncoding.EncodeToString(b)
}
