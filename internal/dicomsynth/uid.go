package dicomsynth

import (
	"math/big"

	"github.com/google/uuid"
)

// uidNamespace seeds name-based UUIDs so UIDs are reproducible per key.
var uidNamespace = uuid.MustParse("9c3b5d1e-7a4f-4c1e-8f0a-2b6d8e4c1a7f")

// DeterministicUID derives a DICOM UID in the 2.25 (UUID) root from key.
func DeterministicUID(key string) string {
	return uuidToUID(uuid.NewSHA1(uidNamespace, []byte(key)))
}

// NewUID returns a random DICOM UID in the 2.25 root.
func NewUID() string {
	return uuidToUID(uuid.New())
}

func uuidToUID(u uuid.UUID) string {
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}
