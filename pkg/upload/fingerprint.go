package upload

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// fingerprintLen is the number of hex characters kept from the listing hash.
const fingerprintLen = 12

// Fingerprint derives a short content fingerprint from an archive's member
// listing. Identical listings fingerprint identically, so repeated uploads of
// the same archive land on the same staging key. The hash only needs to
// spread staging keys, not resist attackers.
func Fingerprint(members []Member) string {
	lines := make([]string, len(members))
	for i, m := range members {
		lines[i] = fmt.Sprintf("%s:%d", m.Name, m.Size)
	}
	sum := xxh3.HashString(strings.Join(lines, "\n"))
	return fmt.Sprintf("%016x", sum)[:fingerprintLen]
}

// StagingKey builds the inbox key for an upload: the fingerprint plus the
// calendar date plus the filename, so identical content on the same day maps
// to the same key.
func StagingKey(date, fingerprint, filename string) string {
	return "inbox/" + date + "/" + fingerprint + "/" + filename
}
