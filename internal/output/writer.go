package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// WriteArtifact stores a raster payload as <dir>/<identifier>.png.
func WriteArtifact(dir string, identifier int64, png []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.png", identifier))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// PurgeArtifact removes a local artifact; a missing file is not an error.
func PurgeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListImages returns the .png files of dir. Artifacts named <identifier>.png
// come first in numeric order, any other names follow in name order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return imageLess(files[i], files[j])
	})
	return files, nil
}

func imageLess(a, b string) bool {
	na, aok := imageNumber(a)
	nb, bok := imageNumber(b)
	switch {
	case aok && bok && na != nb:
		return na < nb
	case aok != bok:
		return aok
	}
	return a < b
}

func imageNumber(path string) (int64, bool) {
	base := filepath.Base(path)
	n, err := strconv.ParseInt(strings.TrimSuffix(base, filepath.Ext(base)), 10, 64)
	return n, err == nil
}
