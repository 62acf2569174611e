package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Fingerprint produces a canonical, order-independent hash of a
// selection. Two selections with the same extras, removals, and chosen
// replacement options hash equal regardless of the order the toggles
// were applied in. A group with its default option in effect carries
// no entry, so "selected the default" and "never touched the group"
// fingerprint identically.
func Fingerprint(sel *Selection) string {
	var b strings.Builder

	b.WriteString("x:")
	writeIDs(&b, sel.Extras())
	b.WriteString(";r:")
	writeIDs(&b, sel.Removals())
	b.WriteString(";g:")

	pairs := make([]string, 0, len(sel.replacements))
	for groupID, optionID := range sel.replacements {
		pairs = append(pairs, groupID.String()+"="+optionID.String())
	}
	sort.Strings(pairs)
	b.WriteString(strings.Join(pairs, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeIDs(b *strings.Builder, ids []uuid.UUID) {
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
}
