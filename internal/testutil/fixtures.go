// Package testutil provides test helper utilities for nftbatch tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// Record builds a complete upload-and-sale record for item i.
func Record(i int) map[string]any {
	return map[string]any{
		"file_path":   fmt.Sprintf("art/%d.png", i),
		"name":        fmt.Sprintf("Cat #%d", i),
		"description": "A cat.",
		"properties":  []map[string]string{{"type": "Eyes", "name": "Blue"}},
		"supply":      1,
		"blockchain":  "ethereum",
		"price":       "0.01",
		"quantity":    1,
		"duration":    "1 month",
	}
}

// ItemsProject returns a data/nfts.json with n records plus the artwork
// they point at. The listed indices have no name.
func ItemsProject(n int, nameless ...int) map[string]string {
	missing := make(map[int]bool, len(nameless))
	for _, i := range nameless {
		missing[i] = true
	}

	files := map[string]string{}
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		r := Record(i)
		if missing[i] {
			delete(r, "name")
		}
		records = append(records, r)
		files[fmt.Sprintf("data/art/%d.png", i)] = "\x89PNG"
	}
	data, _ := json.MarshalIndent(map[string]any{"nft": records}, "", "  ")
	files["data/nfts.json"] = string(data)
	return files
}

// SaleCSV returns a sale-only CSV with one row per URL.
func SaleCSV(urls ...string) string {
	var b strings.Builder
	b.WriteString("url,blockchain,price,quantity,duration\n")
	for _, u := range urls {
		fmt.Fprintf(&b, "%s,ethereum,0.05,1,7 days\n", u)
	}
	return b.String()
}

// ConfigYAML returns a minimal config.yaml overriding the given keys of
// the execution section.
func ConfigYAML(execution map[string]int) string {
	var b strings.Builder
	b.WriteString("marketplace:\n  url: https://opensea.io\nexecution:\n")
	for k, v := range execution {
		fmt.Fprintf(&b, "  %s: %d\n", k, v)
	}
	return b.String()
}
