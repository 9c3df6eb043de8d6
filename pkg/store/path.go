package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

var errRemoveRoot = errors.New("store: cannot remove root")

// ErrTooLong is returned by ConstructPath when the normalized path would
// exceed absPathMax bytes including its NUL terminator.
var ErrTooLong = xserrors.ErrNoMem

// DomainPrefix returns the domain-local path prefix
// "/local/domain/<domid>/" a relative payload is rewritten against.
func DomainPrefix(domid uint16) string {
	return fmt.Sprintf("/local/domain/%d/", domid)
}

// ConstructPath normalizes a request payload into an absolute path,
// prepending the per-domain prefix when payload is relative (does not
// start with "/"), and rejects anything whose NUL-terminated length would
// exceed absPathMax.
func ConstructPath(payload string, domid uint16, absPathMax int) (string, error) {
	var path string
	if strings.HasPrefix(payload, "/") {
		path = payload
	} else {
		path = DomainPrefix(domid) + payload
	}
	if len(path)+1 > absPathMax {
		return "", ErrTooLong
	}
	return path, nil
}

// SplitPath splits an absolute path into its non-empty segments. The root
// path "/" (or "") yields zero segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
