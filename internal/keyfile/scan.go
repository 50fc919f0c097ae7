package keyfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// scanDir walks root recursively and returns every regular file whose name
// contains id, ignoring case. A missing root or unreadable subdirectory is
// not an error; only cancellation is.
func scanDir(ctx context.Context, root, id string) ([]string, error) {
	if root == "" || id == "" {
		return nil, nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}
	needle := strings.ToLower(id)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Access denied on a subtree: keep going with the rest.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			matches = append(matches, path)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return matches, nil
}
