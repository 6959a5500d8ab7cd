package upload

import (
	"fmt"
	"regexp"
	"strings"
)

var notHexCharacters = regexp.MustCompile(`(?i)[^a-f0-9]`)

// CheckListing validates an archive's member listing. Every member path must
// either be <module>/<hex-id>/<file> or a single <name>-symbols.txt, and must
// not contain any of the disallowed snippets. The first violation wins; nil
// means the listing is acceptable.
func CheckListing(members []Member, disallowed []string) error {
	for _, member := range members {
		for _, snippet := range disallowed {
			if strings.Contains(member.Name, snippet) {
				return &RejectionError{Reason: fmt.Sprintf(
					"Content of archive file contains the snippet %q which is not allowed",
					snippet,
				)}
			}
		}
		split := strings.Split(member.Name, "/")
		switch len(split) {
		case 3:
			// the middle part must be only hex characters
			if !notHexCharacters.MatchString(split[1]) {
				continue
			}
		case 1:
			if strings.HasSuffix(strings.ToLower(member.Name), "-symbols.txt") {
				continue
			}
		}
		return &RejectionError{Reason: "Unrecognized file pattern. Should only be " +
			"<module>/<hex>/<file> or <name>-symbols.txt and nothing else."}
	}
	return nil
}
