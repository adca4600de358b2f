package server

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

// sanitizeBase normalizes a mount point to "" or "/x[/y...]".
func sanitizeBase(bp string) string {
	bp = strings.TrimFunc(bp, func(r rune) bool { return r == '/' || unicode.IsSpace(r) })
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// isSafeName validates program image names as they appear in the process table.
// Allowed characters: letters, digits, space and . _ - ( ); no "..", no
// separators and no leading or trailing space.
func isSafeName(s string) bool {
	if s == "" {
		return false
	}
	if strings.Contains(s, "..") || strings.TrimSpace(s) != s {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '.', '_', '-', ' ', '(', ')':
			continue
		}
		return false
	}
	return len(s) <= 255
}

// isSafeAbsPath accepts an empty path or an absolute one that filepath.Clean
// leaves alone apart from a trailing separator.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	return clean == p || clean == strings.TrimRight(p, string(filepath.Separator))
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
