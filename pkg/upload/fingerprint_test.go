package upload

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	members := []Member{
		{Name: "app.pdb/ABCDEF0123456789/app.sym", Size: 100},
		{Name: "crash-symbols.txt", Size: 10},
	}

	fp := Fingerprint(members)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), fp)
	assert.Equal(t, fp, Fingerprint(members), "same listing, same fingerprint")

	changedSize := []Member{
		{Name: "app.pdb/ABCDEF0123456789/app.sym", Size: 101},
		{Name: "crash-symbols.txt", Size: 10},
	}
	assert.NotEqual(t, fp, Fingerprint(changedSize))

	reordered := []Member{members[1], members[0]}
	assert.NotEqual(t, fp, Fingerprint(reordered), "listing order is part of the content")
}

func TestStagingKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"inbox/2026-08-24/aabbccddeeff/symbols.zip",
		StagingKey("2026-08-24", "aabbccddeeff", "symbols.zip"))
}
