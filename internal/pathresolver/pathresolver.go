// Package pathresolver walks "/"-separated paths across the root directory
// and cluster-chained subdirectories, the way the teacher's
// resolvePathToDirent does, extended with "."/".." handling, case-insensitive
// lookup, and the requirement that a trailing slash only matches a
// directory, per spec.md section 4.6.
package pathresolver

import (
	"strings"

	"github.com/hisahi/gofat12/internal/directory"

	ferrors "github.com/hisahi/gofat12/errors"
)

// OpenChild builds the Directory for a subdirectory's first cluster, given
// the child entry's on-disk first-cluster field. It is never called with 0;
// a ".." entry whose first cluster is 0 (meaning "the root directory") is
// handled by the resolver itself.
type OpenChild func(firstCluster uint16) (*directory.Directory, error)

// Resolver walks paths starting from a fixed root directory.
type Resolver struct {
	root      *directory.Directory
	openChild OpenChild
}

// New builds a Resolver rooted at root, using openChild to materialize
// subdirectories discovered along the way.
func New(root *directory.Directory, openChild OpenChild) *Resolver {
	return &Resolver{root: root, openChild: openChild}
}

// split breaks a path into non-empty components and reports whether the
// original path ended in "/", which restricts the final component to a
// directory.
func split(path string) (components []string, trailingSlash bool) {
	trailingSlash = strings.HasSuffix(path, "/") && path != "/"
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			components = append(components, part)
		}
	}
	return components, trailingSlash
}

func (r *Resolver) childOf(cluster uint16) (*directory.Directory, error) {
	if cluster == 0 {
		return r.root, nil
	}
	return r.openChild(cluster)
}

// ResolveDirectory resolves path to the Directory it names. "" and "/" both
// name the root directory.
func (r *Resolver) ResolveDirectory(path string) (*directory.Directory, error) {
	dir, _, err := r.ResolveDirectoryCluster(path)
	return dir, err
}

// ResolveDirectoryCluster resolves path to the Directory it names and the
// first-cluster number that Directory lives at (0 for the root directory).
// Callers that need to wire up a new subdirectory's ".." entry need this
// cluster number, which ResolveDirectory alone discards.
func (r *Resolver) ResolveDirectoryCluster(path string) (*directory.Directory, uint16, error) {
	components, _ := split(path)
	current := r.root
	var currentCluster uint16

	for _, name := range components {
		switch name {
		case ".":
			continue
		case "..":
			// Already-walked-to-root collapses to itself; otherwise look up
			// the real ".." entry to find the parent's first cluster.
			parentEntry, err := current.Lookup("..")
			if err != nil {
				continue // root has no ".." entry; staying put is correct
			}
			next, err := r.childOf(parentEntry.FirstCluster)
			if err != nil {
				return nil, 0, err
			}
			current = next
			currentCluster = parentEntry.FirstCluster
		default:
			entry, err := current.Lookup(name)
			if err != nil {
				return nil, 0, err
			}
			if !entry.IsDir() {
				return nil, 0, ferrors.ErrNotADirectory.WithMessage(name)
			}
			next, err := r.childOf(entry.FirstCluster)
			if err != nil {
				return nil, 0, err
			}
			current = next
			currentCluster = entry.FirstCluster
		}
	}

	return current, currentCluster, nil
}

// Resolve resolves path to its directory entry and the Directory it lives
// in. If path ends in "/", the entry must be a directory.
func (r *Resolver) Resolve(path string) (directory.Entry, *directory.Directory, error) {
	parent, _, name, trailingSlash, err := r.splitParentAndName(path)
	if err != nil {
		return directory.Entry{}, nil, err
	}

	entry, err := parent.Lookup(name)
	if err != nil {
		return directory.Entry{}, nil, err
	}
	if trailingSlash && !entry.IsDir() {
		return directory.Entry{}, nil, ferrors.ErrNotADirectory.WithMessage(path)
	}
	return entry, parent, nil
}

// ResolveParent resolves the directory that would contain path's final
// component, returning that Directory and the bare final-component name,
// without requiring the final component to already exist. This is what
// Insert-style operations (create file, mkdir, rename target) need.
func (r *Resolver) ResolveParent(path string) (*directory.Directory, string, error) {
	parent, _, name, _, err := r.splitParentAndName(path)
	return parent, name, err
}

// ResolveParentCluster is ResolveParent plus the parent directory's own
// first-cluster number (0 for root), which Mkdir needs to wire up the new
// subdirectory's ".." entry.
func (r *Resolver) ResolveParentCluster(path string) (*directory.Directory, uint16, string, error) {
	parent, parentCluster, name, _, err := r.splitParentAndName(path)
	return parent, parentCluster, name, err
}

func (r *Resolver) splitParentAndName(path string) (parent *directory.Directory, parentCluster uint16, name string, trailingSlash bool, err error) {
	components, trailing := split(path)
	if len(components) == 0 {
		return nil, 0, "", trailing, ferrors.ErrBadName.WithMessage("path resolves to the root directory, which has no name")
	}

	parentPath := strings.Join(components[:len(components)-1], "/")
	parentDir, cluster, err := r.ResolveDirectoryCluster(parentPath)
	if err != nil {
		return nil, 0, "", trailing, err
	}
	return parentDir, cluster, components[len(components)-1], trailing, nil
}
