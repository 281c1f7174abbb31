// Package ingest walks a knowledge-base directory tree and feeds its
// documents through the chunk/embed/upsert pipeline.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Source file types. A .txt file is the primary document; a .csv file
// with the same base name is a word-frequency sidecar whose top entries
// are merged into the document's metadata.
var supportedExtensions = map[string]bool{
	".txt": true,
	".csv": true,
}

// maxTopWords bounds how many sidecar words are carried into chunk
// metadata, to keep the payload small.
const maxTopWords = 10

// FileInfo describes one source file discovered during a scan.
type FileInfo struct {
	Path     string
	Filename string
	Ext      string
	Category string
	Author   string // From the filename pattern, may be empty
	Title    string // From the filename pattern, may be empty
	Size     int64
}

var (
	hashPattern = regexp.MustCompile(`^([^#]+)#(.+)$`)
	atPattern   = regexp.MustCompile(`^©([^@]+)@(.+)$`)
)

// ScanRoot catalogs the knowledge base: every subdirectory of root is a
// category, every supported file inside it a source file.
func ScanRoot(root string) (map[string][]FileInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("knowledge base directory not found: %w", err)
	}

	result := make(map[string][]FileInfo)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		category := entry.Name()
		files, err := scanCategory(filepath.Join(root, category), category)
		if err != nil {
			return nil, err
		}
		result[category] = files
	}

	return result, nil
}

func scanCategory(dir, category string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan category %s: %w", category, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !supportedExtensions[ext] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}

		author, title := metadataFromFilename(entry.Name(), category)
		files = append(files, FileInfo{
			Path:     filepath.Join(dir, entry.Name()),
			Filename: entry.Name(),
			Ext:      ext,
			Category: category,
			Author:   author,
			Title:    title,
			Size:     info.Size(),
		})
	}

	return files, nil
}

// metadataFromFilename extracts author and title from the two naming
// conventions used in the corpus:
//
//	Author#Title.txt
//	©Author@Title.txt
//
// Underscores stand in for spaces. Anything else becomes a bare title,
// unless the name just repeats the category.
func metadataFromFilename(filename, category string) (author, title string) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	if m := hashPattern.FindStringSubmatch(name); m != nil {
		return cleanName(m[1]), cleanName(m[2])
	}
	if m := atPattern.FindStringSubmatch(name); m != nil {
		return cleanName(m[1]), cleanName(m[2])
	}
	if name != category {
		return "", cleanName(name)
	}
	return "", ""
}

func cleanName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// GroupRelated maps base filenames to their companion files by
// extension, so a document's .csv sidecar can be found next to its .txt.
func GroupRelated(files []FileInfo) map[string]map[string]FileInfo {
	related := make(map[string]map[string]FileInfo)
	for _, f := range files {
		base := strings.TrimSuffix(f.Filename, f.Ext)
		if related[base] == nil {
			related[base] = make(map[string]FileInfo)
		}
		related[base][f.Ext] = f
	}
	return related
}

// readTopWords parses a word-frequency sidecar CSV
// (word,type,count,percentage) and returns its leading words. Rows
// missing the expected columns are skipped; a malformed sidecar never
// fails the document it accompanies.
func readTopWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	wordCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "word") {
			wordCol = i
		}
	}
	if wordCol == -1 {
		return nil, fmt.Errorf("sidecar %s has no word column", path)
	}

	var words []string
	for len(words) < maxTopWords {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if wordCol < len(row) {
			if w := strings.TrimSpace(row[wordCol]); w != "" {
				words = append(words, w)
			}
		}
	}

	return words, nil
}
