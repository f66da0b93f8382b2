package models

import (
	"path/filepath"
	"strings"
)

// ArtifactName joins a document base name and a prompt name into the
// output file name "<document>_<prompt>.txt". Path separators in either
// part are replaced so the artifact always lands in the output directory.
func ArtifactName(document, prompt string) string {
	return safeComponent(document) + "_" + safeComponent(prompt) + ".txt"
}

// DocumentBaseName returns the file name of path without its extension.
func DocumentBaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func safeComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '-'
		}
		return r
	}, s)
}
