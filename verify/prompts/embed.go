package prompts

import (
	"embed"
	"strings"
)

//go:embed *.md
var promptFS embed.FS

// Load returns the named prompt with {tab_name} replaced by tab.
func Load(name, tab string) (string, error) {
	data, err := promptFS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "{tab_name}", tab), nil
}
