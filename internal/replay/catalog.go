package replay

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is a catalogued replay header with its resolved manifest path.
type Entry struct {
	HeaderPath   string `json:"header_path"`
	ManifestPath string `json:"manifest_path"`
	Header       Header `json:"header"`
}

// List walks root for header.json files and returns them oldest first.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("root must be a directory")
	}

	//1.- Collect every closed bundle by its header and resolve the manifest beside it.
	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != headerFile {
			return nil
		}
		header, err := ReadHeader(path)
		if err != nil {
			return err
		}
		manifestPath := header.FilePointer
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(path), manifestPath)
		}
		entries = append(entries, Entry{HeaderPath: path, ManifestPath: manifestPath, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	//2.- Order chronologically, breaking ties on the manifest path.
	sort.Slice(entries, func(i, j int) bool {

		if entries[i].Header.CreatedAt == entries[j].Header.CreatedAt {
			return entries[i].ManifestPath < entries[j].ManifestPath
		}
		return entries[i].Header.CreatedAt < entries[j].Header.CreatedAt
	})
	return entries, nil
}
