package conf

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TaxonomyFile is the YAML shape of a category taxonomy file.
type TaxonomyFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategories resolves the classification taxonomy. Precedence: the
// CATEGORIES environment variable (comma-separated), then a YAML taxonomy
// file, then nil, which lets the client fall back to its built-in default.
func LoadCategories(configPath string) []string {
	if val := os.Getenv("CATEGORIES"); val != "" {
		return splitCategories(val)
	}

	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/categories.yaml",
			"./configs/categories.yaml",
			"/etc/skylabel/categories.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "categories.yaml"))
		}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var file TaxonomyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			continue
		}
		if len(file.Categories) > 0 {
			return normalizeCategories(file.Categories)
		}
	}

	return nil
}

func splitCategories(val string) []string {
	return normalizeCategories(strings.Split(val, ","))
}

func normalizeCategories(raw []string) []string {
	var categories []string
	for _, cat := range raw {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat != "" {
			categories = append(categories, cat)
		}
	}
	return categories
}
