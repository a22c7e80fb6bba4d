package models

import (
	"strings"
	"unicode/utf8"
)

var languageExtensions = map[string]string{
	"rust":       "rs",
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"go":         "go",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "cs",
	"php":        "php",
	"ruby":       "rb",
	"swift":      "swift",
	"kotlin":     "kt",
	"dart":       "dart",
	"html":       "html",
	"css":        "css",
	"scss":       "scss",
	"sql":        "sql",
	"bash":       "sh",
	"powershell": "ps1",
	"yaml":       "yml",
	"json":       "json",
	"xml":        "xml",
	"markdown":   "md",
	"dockerfile": "dockerfile",
	"toml":       "toml",
	"ini":        "ini",
	"config":     "conf",
	"text":       "txt",
}

var languageAliases = map[string]string{
	"golang": "go",
	"js":     "javascript",
	"ts":     "typescript",
	"py":     "python",
	"rs":     "rust",
	"c++":    "cpp",
	"c#":     "csharp",
	"cs":     "csharp",
	"rb":     "ruby",
	"kt":     "kotlin",
	"sh":     "bash",
	"shell":  "bash",
	"zsh":    "bash",
	"ps1":    "powershell",
	"yml":    "yaml",
	"md":     "markdown",
	"txt":    "text",
	"plain":  "text",
}

// NormalizeLanguage lower-cases a language tag and resolves common aliases.
// Unknown languages are kept as given (lower-cased).
func NormalizeLanguage(lang string) string {
	l := strings.TrimSpace(lang)
	if !utf8.ValidString(l) {
		return l
	}
	l = strings.ToLower(l)
	if canonical, ok := languageAliases[l]; ok {
		return canonical
	}
	return l
}

// Extension returns the file extension for a language, "txt" when unknown.
func Extension(lang string) string {
	if ext, ok := languageExtensions[NormalizeLanguage(lang)]; ok {
		return ext
	}
	return "txt"
}
