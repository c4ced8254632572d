package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// UpdateKey identifies one delivered update.
func UpdateKey(upd update.Update) string {
	return UpdateKeyOf(upd.ID, upd.Scope())
}

// UpdateKeyOf is UpdateKey for callers that only kept the id and scope.
func UpdateKeyOf(id int64, scope update.Scope) string {
	return GenerateKey("update", id, scope.String())
}
