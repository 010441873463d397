package extract

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// extractPlain reads a text file. Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\uFFFD"), nil
	}
	return string(content), nil
}
