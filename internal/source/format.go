package source

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/coffersTech/eventscope/internal/model"
)

// TemplateFormatter formats record messages from per-provider message
// templates. Providers with no template are remembered in a negative
// cache so repeated lookups for chatty unknown providers stay cheap.
//
// Templates use the conventional %1..%n insertion syntax; insertion i is
// replaced with the i-th event data value.
type TemplateFormatter struct {
	templates map[string]string
	missing   map[string]struct{}
}

// NewTemplateFormatter builds a formatter over the given provider→template
// table. A nil table is valid and formats nothing.
func NewTemplateFormatter(templates map[string]string) *TemplateFormatter {
	return &TemplateFormatter{
		templates: templates,
		missing:   make(map[string]struct{}),
	}
}

// LoadTemplates reads a provider→template table from a JSON file.
func LoadTemplates(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var templates map[string]string
	if err := json.Unmarshal(b, &templates); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return templates, nil
}

// Format implements MessageFormatter.
func (f *TemplateFormatter) Format(_ Handle, rec *model.Record) (string, bool) {
	if rec.Provider == "" {
		return "", false
	}
	if _, bad := f.missing[rec.Provider]; bad {
		return "", false
	}
	tpl, ok := f.templates[rec.Provider]
	if !ok {
		f.missing[rec.Provider] = struct{}{}
		return "", false
	}
	return expandTemplate(tpl, rec.EventData), true
}

// expandTemplate substitutes %1..%n insertions with event data values.
// Out-of-range insertions and stray percent signs pass through verbatim.
func expandTemplate(tpl string, data []model.DataPair) string {
	var sb strings.Builder
	sb.Grow(len(tpl))
	for i := 0; i < len(tpl); {
		c := tpl[i]
		if c != '%' || i+1 >= len(tpl) {
			sb.WriteByte(c)
			i++
			continue
		}
		if tpl[i+1] == '%' {
			sb.WriteByte('%')
			i += 2
			continue
		}
		j := i + 1
		for j < len(tpl) && tpl[j] >= '0' && tpl[j] <= '9' {
			j++
		}
		if j == i+1 {
			sb.WriteByte(c)
			i++
			continue
		}
		n := 0
		for _, d := range tpl[i+1 : j] {
			n = n*10 + int(d-'0')
		}
		if n >= 1 && n <= len(data) {
			sb.WriteString(data[n-1].Value)
		} else {
			sb.WriteString(tpl[i:j])
		}
		i = j
	}
	return sb.String()
}
