package dataset

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// DirOptions configures a directory source.
type DirOptions struct {
	Extensions []string
}

// DirSource walks <root>/<identity>/<image>. Identity directories and the
// images inside them are visited in lexical order. Files directly under
// root and deeper subdirectories are ignored.
type DirSource struct {
	root    string
	include func(string) bool
}

// Dir returns a source over root.
func Dir(root string, optFns ...func(o *DirOptions)) *DirSource {
	opts := DirOptions{Extensions: DefaultExtensions}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DirSource{root: root, include: extensionFilter(opts.Extensions)}
}

// Root returns the dataset root.
func (d *DirSource) Root() string { return d.root }

// Pairs implements Source.
func (d *DirSource) Pairs(ctx context.Context) iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		identities, err := os.ReadDir(d.root)
		if err != nil {
			yield(Pair{}, fmt.Errorf("dataset: read %s: %w", d.root, err))
			return
		}

		// os.ReadDir returns entries sorted by filename.
		for _, ident := range identities {
			if !ident.IsDir() || strings.HasPrefix(ident.Name(), ".") {
				continue
			}
			dir := filepath.Join(d.root, ident.Name())
			files, err := os.ReadDir(dir)
			if err != nil {
				yield(Pair{}, fmt.Errorf("dataset: read %s: %w", dir, err))
				return
			}
			for _, f := range files {
				if f.IsDir() || !d.include(f.Name()) {
					continue
				}
				if err := ctx.Err(); err != nil {
					yield(Pair{}, err)
					return
				}
				full := filepath.Join(dir, f.Name())
				pair := Pair{
					IdentityID: ident.Name(),
					Key:        filepath.ToSlash(filepath.Join(ident.Name(), f.Name())),
					Open: func(context.Context) ([]byte, error) {
						return os.ReadFile(full)
					},
				}
				if !yield(pair, nil) {
					return
				}
			}
		}
	}
}
