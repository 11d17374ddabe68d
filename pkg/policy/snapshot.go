package policy

import (
	"os"

	"github.com/requiem-run/requiem-core/pkg/digest"
)

const noPolicyFileSentinel = "__NO_POLICY_FILE__"

// DefaultLookupPaths is the fixed, ordered list of policy file
// candidates checked when no override list is given.
var DefaultLookupPaths = []string{
	"./policy/default.policy.json",
	"./policy.json",
}

// CapturePolicySnapshotHash reads the first existing file from
// lookupPaths and returns BLAKE3(bytes), or BLAKE3(sentinel) when none
// exist. The hash is stamped onto every persisted replay envelope so a
// later re-execution under a different policy snapshot is detectable.
func CapturePolicySnapshotHash(lookupPaths []string) (string, error) {
	if len(lookupPaths) == 0 {
		lookupPaths = DefaultLookupPaths
	}

	for _, path := range lookupPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		return digest.Hash(data), nil
	}

	return digest.Hash([]byte(noPolicyFileSentinel)), nil
}
