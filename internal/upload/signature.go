package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/chatship-io/chatship/internal/domain"
)

// Signature derives the stable session signature for a file. The hash
// covers base name and size, so a renamed or modified file starts a fresh
// session instead of resuming a mismatched one.
func Signature(path string, size int64) domain.FileSignature {
	name := filepath.Base(path)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d", name, size)
	return domain.FileSignature{
		Name: name,
		Size: size,
		Hash: hex.EncodeToString(h.Sum(nil)),
	}
}
