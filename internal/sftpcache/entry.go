package sftpcache

import (
	"os"
	"path"
	"sort"

	"github.com/pkg/sftp"
)

const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// FileEntry describes one remote path. Mtime is in milliseconds.
type FileEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
	Mode  uint32 `json:"mode"`
	Mtime int64  `json:"mtime"`
}

func entryFromInfo(name string, fi os.FileInfo) FileEntry {
	e := FileEntry{
		Name:  name,
		Size:  fi.Size(),
		Type:  TypeFile,
		Mode:  uint32(fi.Mode().Perm()),
		Mtime: fi.ModTime().Unix() * 1000,
	}
	if fi.IsDir() {
		e.Type = TypeDirectory
	}
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		e.Mode = st.Mode
	}
	return e
}

// sortEntries puts directories first, then orders by name.
func sortEntries(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Type == TypeDirectory) != (b.Type == TypeDirectory) {
			return a.Type == TypeDirectory
		}
		return a.Name < b.Name
	})
}

func baseName(p string) string {
	b := path.Base(p)
	if b == "." || b == "/" {
		return ""
	}
	return b
}
