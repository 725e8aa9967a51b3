// Package walker enumerates the regular files under an input root.
package walker

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Task is one file discovered by the walk.
type Task struct {
	// SourcePath is the input root joined with RelPath.
	SourcePath string
	// RelPath is relative to the input root. It is empty when the root is a
	// single file.
	RelPath string
	// Err is set when the entry could not be read. The task is still yielded
	// so the failure can be recorded.
	Err error
}

// Option configures a Walker.
type Option func(*Walker)

// Exclude skips the subtree rooted at dir. The root itself is never skipped.
func Exclude(dir string) Option {
	return func(w *Walker) {
		w.excludes = append(w.excludes, resolve(dir))
	}
}

// Walker yields tasks for every regular file below root in lexical order.
// Symlinked files are followed; symlinked directories are not descended.
type Walker struct {
	root     string
	excludes []string
}

func New(root string, opts ...Option) *Walker {
	w := &Walker{root: root}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Tasks returns a lazy sequence over the files under the root.
func (w *Walker) Tasks() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		info, err := os.Stat(w.root)
		if err != nil {
			yield(Task{SourcePath: w.root, Err: err})
			return
		}
		if !info.IsDir() {
			yield(Task{SourcePath: w.root})
			return
		}

		// WalkDir does not follow a symlinked root on its own.
		walkRoot := w.root
		if resolved, err := filepath.EvalSymlinks(w.root); err == nil {
			walkRoot = resolved
		}
		absRoot := resolve(walkRoot)

		// visit never returns an error other than SkipDir or SkipAll.
		_ = filepath.WalkDir(walkRoot, w.visit(walkRoot, absRoot, yield))
	}
}

// visit returns the WalkDir callback for a walk rooted at walkRoot. Every
// problem is reported to yield as a failed Task.
func (w *Walker) visit(walkRoot, absRoot string, yield func(Task) bool) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(walkRoot, path)
		if relErr != nil {
			if !yield(Task{SourcePath: path, Err: relErr}) {
				return filepath.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err != nil {
			if path == walkRoot {
				yield(Task{SourcePath: w.root, Err: err})
				return filepath.SkipAll
			}
			if !yield(w.task(rel, err)) {
				return filepath.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != walkRoot && w.excluded(filepath.Join(absRoot, rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		regular, err := isRegular(path, d)
		if !regular && err == nil {
			return nil
		}
		if !yield(w.task(rel, err)) {
			return filepath.SkipAll
		}
		return nil
	}
}

func (w *Walker) task(rel string, err error) Task {
	return Task{
		SourcePath: filepath.Join(w.root, rel),
		RelPath:    rel,
		Err:        err,
	}
}

func (w *Walker) excluded(abs string) bool {
	for _, dir := range w.excludes {
		if abs == dir {
			return true
		}
	}
	return false
}

// isRegular reports whether d is a regular file, following one level of
// symlink. A dangling link is reported through err.
func isRegular(path string, d fs.DirEntry) (bool, error) {
	if d.Type().IsRegular() {
		return true, nil
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
