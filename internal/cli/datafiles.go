package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// dataDirName holds the item files offered when no file is given.
const dataDirName = "data"

// dataFiles lists the item files directly inside dir.
func dataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".csv", ".xlsx":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
