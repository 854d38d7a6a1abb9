package logsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// FSSource serves flight logs from a local directory tree, for offline
// runs and development against a mirrored bucket. Identifiers are paths
// relative to the root, with forward slashes.
type FSSource struct {
	root   string
	filter *vehicle.Filter
}

// NewFSSource validates the root directory and returns the source.
func NewFSSource(root string, filter *vehicle.Filter) (*FSSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("fs: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fs: %s is not a directory", root)
	}
	return &FSSource{root: root, filter: filter}, nil
}

// List walks the tree and returns one LogRef per matching .ulg file,
// sorted by identifier for a stable listing order.
func (s *FSSource) List(ctx context.Context) ([]model.LogRef, error) {
	var refs []model.LogRef
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !isLogKey(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !s.filter.MatchKey(key) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		refs = append(refs, model.LogRef{
			Identifier: key,
			VehicleID:  vehicle.InferFromKey(key),
			SizeHint:   info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: listing %s: %w", s.root, err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Identifier < refs[j].Identifier })
	return refs, nil
}

// Open returns the file's byte stream.
func (s *FSSource) Open(_ context.Context, identifier string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(identifier)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fs: %s: %w", identifier, ErrNotFound)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("fs: %s: %w", identifier, ErrAccessDenied)
		}
		return nil, err
	}
	return f, nil
}
