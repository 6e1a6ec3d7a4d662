package refdata

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Conversion modes, used as template keys and report labels.
const (
	ModeCatalog  = "catalog"
	ModePolicies = "policies"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template is the fixed output layout for one conversion mode. The header
// rows are the compatibility surface with the downstream importer: order
// and spelling must not drift.
type Template struct {
	Sheet   string     `yaml:"sheet"`
	Headers [][]string `yaml:"headers"`
}

// TemplateStore holds the output templates, loaded once per process.
type TemplateStore struct {
	templates map[string]Template
}

type templatesFile struct {
	Templates map[string]Template `yaml:"templates"`
}

// LoadTemplates reads the template definitions. An empty path loads the
// embedded defaults shipped with the binary.
func LoadTemplates(path string) (*TemplateStore, error) {
	data := defaultTemplates
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read templates file: %w", err)
		}
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse templates file: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("templates file defines no templates")
	}

	for mode, tmpl := range file.Templates {
		if len(tmpl.Headers) == 0 {
			return nil, fmt.Errorf("template %q has no header rows", mode)
		}
	}

	return &TemplateStore{templates: file.Templates}, nil
}

// Get returns the template for a conversion mode.
func (s *TemplateStore) Get(mode string) (Template, error) {
	tmpl, ok := s.templates[mode]
	if !ok {
		return Template{}, fmt.Errorf("no output template for mode %q", mode)
	}
	return tmpl, nil
}
