// Package filesys abstracts the file operations rbl performs so that config
// loading and report writing can be tested without touching the disk.
package filesys

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/lc/rbl/internal/log"
)

// ReadWriteFS is what the config provider needs.
type ReadWriteFS interface {
	Stat(string) (fs.FileInfo, error)
	MkdirAll(string, os.FileMode) error
	Open(string) (*os.File, error)
	WriteFile(string, []byte, os.FileMode) error
}

// FileOps is what AtomicWrite needs.
type FileOps interface {
	Open(string) (*os.File, error)
	MkdirAll(string, os.FileMode) error
	CreateTemp(string, string) (*os.File, error)
	Rename(string, string) error
	Remove(string) error
	Chmod(string, os.FileMode) error
}

// OS returns the implementation backed by the local disk.
func OS() OsFS {
	return OsFS{}
}

// OsFS implements ReadWriteFS and FileOps with the os package.
type OsFS struct{}

func (OsFS) Stat(p string) (fs.FileInfo, error)                { return os.Stat(p) }
func (OsFS) MkdirAll(p string, m os.FileMode) error            { return os.MkdirAll(p, m) }
func (OsFS) Open(p string) (*os.File, error)                   { return os.Open(p) }
func (OsFS) WriteFile(p string, b []byte, m os.FileMode) error { return os.WriteFile(p, b, m) }
func (OsFS) CreateTemp(dir, pat string) (*os.File, error)      { return os.CreateTemp(dir, pat) }
func (OsFS) Rename(old, newName string) error                  { return os.Rename(old, newName) }
func (OsFS) Remove(p string) error                             { return os.Remove(p) }
func (OsFS) Chmod(p string, m os.FileMode) error               { return os.Chmod(p, m) }

var (
	_ ReadWriteFS = OsFS{}
	_ FileOps     = OsFS{}
)

// AtomicWrite replaces dst with data so that readers see either the old
// file or the complete new one. The data goes to a temporary file in the
// destination directory, which is synced, chmod'ed to perm and renamed over
// dst. The directory is synced afterwards on a best-effort basis.
func AtomicWrite(fsys FileOps, dst string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(dst)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := fsys.CreateTemp(dir, ".rbl-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	name := tmp.Name()

	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	err = multierr.Append(err, tmp.Close())
	if err == nil {
		err = fsys.Chmod(name, perm)
	}
	if err == nil {
		err = fsys.Rename(name, dst)
	}
	if err != nil {
		if rerr := fsys.Remove(name); rerr != nil {
			log.Warn("failed to remove temp file", "path", name, "error", rerr)
		}
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	syncDir(fsys, dir)
	return nil
}

func syncDir(fsys FileOps, dir string) {
	d, err := fsys.Open(dir)
	if err != nil {
		return
	}
	if err := multierr.Append(d.Sync(), d.Close()); err != nil {
		log.Debug("failed to sync directory", "path", dir, "error", err)
	}
}
