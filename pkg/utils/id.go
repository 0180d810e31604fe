package utils

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GeneratePeerID generates a globally unique peer ID
func GeneratePeerID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a short request ID
func GenerateRequestID() string {
	id, err := gonanoid.Generate(requestIDAlphabet, 16)
	if err != nil {
		return "req_" + GenerateTraceID()[:16]
	}
	return "req_" + id
}

// GenerateTraceID generates a unique trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
