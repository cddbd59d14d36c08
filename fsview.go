package lfs

import (
	"io"
	"io/fs"
	"strings"
	"time"
)

// fsview.go exposes a mounted Volume as an fs.FS, for callers that want
// to treat it as a read-only filesystem tree (os.DirFS-style) instead of
// driving the inode-number API directly. Adapted from the teacher's
// io.Reader-shaped inode views in its deleted inodereader.go.

// FS returns a read-only fs.FS rooted at v's root directory.
func (v *Volume) FS() fs.FS { return (*volumeFS)(v) }

type volumeFS Volume

func (fsys *volumeFS) vol() *Volume { return (*Volume)(fsys) }

// Open resolves a slash-separated path from the root directory, walking
// one DirLookup per path component.
func (fsys *volumeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	v := fsys.vol()

	ino := uint32(RootIno)
	if name != "." {
		for _, part := range strings.Split(name, "/") {
			next, _, err := v.DirLookup(ino, part)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
			}
			ino = next
		}
	}

	rec, err := v.ReadInode(ino)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &volumeFile{v: v, ino: ino, rec: rec, name: name}, nil
}

type volumeFile struct {
	v      *Volume
	ino    uint32
	rec    *Inode
	name   string
	offset int64
}

func (f *volumeFile) Stat() (fs.FileInfo, error) { return &volumeFileInfo{name: f.name, rec: f.rec}, nil }

func (f *volumeFile) Read(p []byte) (int, error) {
	n, err := f.v.FileRead(f.ino, p, f.offset)
	f.offset += int64(n)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *volumeFile) Close() error { return nil }

type volumeFileInfo struct {
	name string
	rec  *Inode
}

func (fi *volumeFileInfo) Name() string       { return fi.name }
func (fi *volumeFileInfo) Size() int64        { return int64(fi.rec.Size) }
func (fi *volumeFileInfo) Mode() fs.FileMode  { return translateMode(fi.rec.Mode) }
func (fi *volumeFileInfo) ModTime() time.Time { return time.Unix(fi.rec.Mtime, 0) }
func (fi *volumeFileInfo) IsDir() bool        { return ModeIsDir(fi.rec.Mode) }
func (fi *volumeFileInfo) Sys() any           { return fi.rec }

func translateMode(mode uint16) fs.FileMode {
	perm := fs.FileMode(mode & ModePerm)
	switch {
	case ModeIsDir(mode):
		return perm | fs.ModeDir
	case ModeIsSymlink(mode):
		return perm | fs.ModeSymlink
	default:
		return perm
	}
}
