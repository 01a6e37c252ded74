// Package parser extracts frontmatter and publish contexts from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/models"
)

var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// Keys names the frontmatter fields folio reads and writes.
type Keys struct {
	UID       string `yaml:"uid"`
	Contexts  string `yaml:"contexts"`
	Title     string `yaml:"title"`
	Delimiter string `yaml:"delimiter"`
}

// DefaultKeys returns the stock field names.
func DefaultKeys() Keys {
	return Keys{
		UID:       "uid",
		Contexts:  "publish-contexts",
		Title:     "title",
		Delimiter: ",",
	}
}

// ParseNote builds a models.Note for the file at p. The returned correction is
// non-nil when the publish contexts field had to be reinterpreted.
func ParseNote(p string, data []byte, modTime time.Time, keys Keys) (*models.Note, *models.Correction) {
	fm, body := splitFrontmatter(data)

	contexts, reason := ParseContexts(fm[keys.Contexts], keys.Delimiter)
	var corr *models.Correction
	if reason != "" {
		corr = &models.Correction{Path: p, Raw: fm[keys.Contexts], Reason: reason}
	}

	return &models.Note{
		Path:        p,
		Raw:         data,
		Body:        body,
		Frontmatter: fm,
		Title:       deriveTitle(fm, keys.Title, p),
		UID:         scalarString(fm[keys.UID]),
		Contexts:    contexts,
		ModTime:     modTime,
	}, corr
}

// ParseContexts normalises a raw publish-contexts value into a membership set.
// A non-empty reason means the value was not a plain list of ids.
func ParseContexts(v any, delimiter string) (models.Membership, string) {
	if delimiter == "" {
		delimiter = ","
	}
	switch val := v.(type) {
	case nil:
		return models.NewMembership(), ""
	case []any:
		ids := make([]string, 0, len(val))
		reason := ""
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				reason = "non-string list item dropped"
				continue
			}
			ids = append(ids, strings.TrimSpace(s))
		}
		return models.NewMembership(ids...), reason
	case []string:
		return models.NewMembership(val...), ""
	case string:
		if strings.TrimSpace(val) == "" {
			return models.NewMembership(), "empty string"
		}
		parts := strings.Split(val, delimiter)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return models.NewMembership(parts...), "delimited string"
	default:
		return models.NewMembership(), "unsupported value type"
	}
}

// splitFrontmatter separates the leading YAML block from the Markdown body.
// If no valid block is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	var fm map[string]any
	rest, err := frontmatter.Parse(bytes.NewReader(data), &fm, yamlFormat)
	if err != nil {
		return map[string]any{}, string(data)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	if len(rest) == len(data) {
		return fm, string(data)
	}
	return fm, strings.TrimLeft(string(rest), "\n\r")
}

// SplitReference splits the inside of [[...]] into target, heading and alias.
func SplitReference(raw string) (target, heading, alias string) {
	target = raw
	if i := strings.Index(target, "|"); i >= 0 {
		alias = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		heading = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	return strings.TrimSpace(target), heading, alias
}

// deriveTitle returns the frontmatter title if present, otherwise the file stem.
func deriveTitle(fm map[string]any, key, p string) string {
	if t, ok := fm[key].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// scalarString renders a YAML scalar as text; `uid: 12345` decodes to an int.
// Lists and maps yield "".
func scalarString(v any) string {
	switch val := v.(type) {
	case nil, []any, map[string]any:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		return fmt.Sprint(val)
	}
}
