package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
)

type catalogFile struct {
	Templates []*Template `json:"templates"`
}

// Load reads a template catalog from a JSON file
func Load(path string, opts ...Option) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewCatalogLoadError(path, err)
	}
	defer f.Close()

	c, err := Parse(f, opts...)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrorTemplateInvalid) {
			return nil, err
		}
		return nil, apperrors.NewCatalogLoadError(path, err)
	}
	return c, nil
}

// Parse decodes {"templates": [...]} and validates every template.
// A malformed template yields a TEMPLATE_INVALID error naming its index.
func Parse(r io.Reader, opts ...Option) (*Catalog, error) {
	var file catalogFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	for i, t := range file.Templates {
		if t == nil {
			return nil, apperrors.NewTemplateInvalidError(i, fmt.Errorf("template is null"))
		}
		if err := t.Validate(); err != nil {
			return nil, apperrors.NewTemplateInvalidError(i, err)
		}
	}

	return New(file.Templates, opts...)
}
