// Package config — ini.go
//
// Hand-written INI reader for the brimd configuration file.
//
// Format:
//
//	[section]
//	key = value
//
//	[section#suffix]
//	key = value
//
// Lookup falls back from a named sub-section to its family section to
// [brim]: e.g. an option requested for [wsgi#alt] that is absent there is
// looked up in [wsgi], then in [brim]. This three-level fallback is the
// one piece of behavior that makes a general-purpose Go ini library
// (gopkg.in/ini.v1 and similar) the wrong fit even where one is available:
// none of them implement family/global fallback out of the box. Hence a
// small stdlib scanner instead (see DESIGN.md).
//
// No value typing is done here: every value is a string. internal/config's
// typed layer (plan.go, options.go) converts to int/bool/duration as
// needed, the same way a Validate step converts a generically unmarshaled
// structure into typed fields.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Doc is a parsed INI document: an ordered list of sections, each holding
// its own key/value pairs in file order.
type Doc struct {
	sections []string
	options  map[string]map[string]string
	order    map[string][]string
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config.ParseFile: open %q: %w", path, err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config.ParseFile: %q: %w", path, err)
	}
	return doc, nil
}

// Parse reads an INI document from r.
func Parse(r io.Reader) (*Doc, error) {
	doc := &Doc{
		options: make(map[string]map[string]string),
		order:   make(map[string][]string),
	}
	scanner := bufio.NewScanner(r)
	section := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("config.Parse: line %d: malformed section header %q", lineNo, line)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "" {
				return nil, fmt.Errorf("config.Parse: line %d: empty section name", lineNo)
			}
			if _, ok := doc.options[section]; !ok {
				doc.sections = append(doc.sections, section)
				doc.options[section] = make(map[string]string)
			}
			continue
		}
		if section == "" {
			return nil, fmt.Errorf("config.Parse: line %d: option outside any section: %q", lineNo, line)
		}
		key, val, ok := splitOption(line)
		if !ok {
			return nil, fmt.Errorf("config.Parse: line %d: malformed option %q", lineNo, line)
		}
		if _, exists := doc.options[section][key]; !exists {
			doc.order[section] = append(doc.order[section], key)
		}
		doc.options[section][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config.Parse: scan: %w", err)
	}
	return doc, nil
}

func splitOption(line string) (key, val string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	val = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, val, true
}

// Sections returns all section names in file order.
func (d *Doc) Sections() []string {
	out := make([]string, len(d.sections))
	copy(out, d.sections)
	return out
}

// Keys returns the option keys declared directly in section, in file order.
func (d *Doc) Keys(section string) []string {
	out := make([]string, len(d.order[section]))
	copy(out, d.order[section])
	return out
}

// HasSection reports whether section was declared in the document.
func (d *Doc) HasSection(section string) bool {
	_, ok := d.options[section]
	return ok
}

// family returns the top-level family section name for a (possibly
// "#suffix"-qualified) section name, e.g. "wsgi#alt" -> "wsgi".
func family(section string) string {
	if i := strings.IndexByte(section, '#'); i >= 0 {
		return section[:i]
	}
	return section
}

// Get looks up key in section, falling back to the section's family and
// then to [brim]. Returns ("", false) if not found anywhere in the chain.
func (d *Doc) Get(section, key string) (string, bool) {
	if v, ok := d.options[section][key]; ok {
		return v, true
	}
	if fam := family(section); fam != section {
		if v, ok := d.options[fam][key]; ok {
			return v, true
		}
	}
	if section != "brim" {
		if v, ok := d.options["brim"][key]; ok {
			return v, true
		}
	}
	return "", false
}

// GetString is Get with a default.
func (d *Doc) GetString(section, key, def string) string {
	if v, ok := d.Get(section, key); ok {
		return v
	}
	return def
}
