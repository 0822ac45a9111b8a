//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite store %q needs a build with -tags sqlite", ErrBackendUnavailable, path)
}
