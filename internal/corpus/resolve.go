package corpus

import (
	"os"
	"path/filepath"
	"strings"
)

// RawExtensions is the lookup order used to find the original file of an
// indexed source.
var RawExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// ResolveRawDocument maps an indexed source ("report.txt") back to the raw
// document it was extracted from by stripping the processed extension and
// probing each candidate extension in rawDir. Returns false when none exists.
func ResolveRawDocument(rawDir, source string) (string, bool) {
	if source == "" {
		return "", false
	}

	base := strings.TrimSuffix(filepath.Base(source), ProcessedExt)
	for _, ext := range RawExtensions {
		candidate := filepath.Join(rawDir, base+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
