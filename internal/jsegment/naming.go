package jsegment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// generationDigits matches spec.md's "<base>.<16-digit-generation>" naming.
const generationDigits = 16

// FileName returns the on-disk name for generation under base, e.g.
// "journal.0000000000000003".
func FileName(base string, generation int64) string {
	return fmt.Sprintf("%s.%0*d", base, generationDigits, generation)
}

// File describes one segment file discovered on disk.
type File struct {
	Path       string
	Generation int64
}

// ParseGeneration extracts the generation from a segment file name, or
// reports ok=false if name does not match "<base>.<16-digit-generation>".
func ParseGeneration(name, base string) (generation int64, ok bool) {
	prefix := base + "."
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	suffix := name[len(prefix):]
	if len(suffix) != generationDigits {
		return 0, false
	}
	g, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return g, true
}

// List returns every segment file under dir matching base's naming
// pattern, sorted lexicographically — which, by construction of the fixed-
// width generation, sorts by generation.
func List(dir, base string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		gen, ok := ParseGeneration(e.Name(), base)
		if !ok {
			continue
		}
		files = append(files, File{Path: filepath.Join(dir, e.Name()), Generation: gen})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Generation < files[j].Generation })
	return files, nil
}
