package grammar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrMalformedRule = errors.New("malformed grammar rule")

// Load reads a grammar file from fs. Files ending in .yaml or .yml use the YAML
// layout; anything else is read as a .gmr file.
func Load(fs afero.Fs, path string) (*Set, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grammar %s: %w", path, err)
	}
	defer f.Close()

	var rules []Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rules, err = ParseYAML(f)
	default:
		rules, err = ParseGMR(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse grammar %s: %w", path, err)
	}
	return NewSet(rules...), nil
}

// ParseGMR reads rules in the line format
//
//	g_yes	.*(yes|yeah|of*course)
//
// where '|' separates alternatives and '*' joins words that must all appear.
// Blank lines and lines starting with '#' are skipped.
func ParseGMR(r io.Reader) ([]Rule, error) {
	var rules []Rule
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, body, ok := strings.Cut(text, ".*")
		key = strings.TrimSpace(strings.ReplaceAll(key, "\t", ""))
		body = strings.TrimSpace(body)
		if !ok || key == "" || len(body) < 2 || body[0] != '(' || body[len(body)-1] != ')' {
			return nil, fmt.Errorf("line %d: %w", line, ErrMalformedRule)
		}
		rule := Rule{ID: ID(key)}
		for _, alt := range strings.Split(body[1:len(body)-1], "|") {
			if strings.Contains(alt, "*") {
				rule.Tuples = append(rule.Tuples, strings.Split(alt, "*"))
			} else {
				rule.Keywords = append(rule.Keywords, alt)
			}
		}
		rules = append(rules, rule)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

type yamlRule struct {
	Any []string   `yaml:"any"`
	All [][]string `yaml:"all"`
}

// ParseYAML reads rules from a mapping of grammar id to {any, all}:
//
//	g_yes:
//	  any: [yes, yeah]
//	  all: [[of, course]]
func ParseYAML(r io.Reader) ([]Rule, error) {
	var doc map[string]yamlRule
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	rules := make([]Rule, 0, len(doc))
	for id, yr := range doc {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("empty id: %w", ErrMalformedRule)
		}
		rules = append(rules, Rule{ID: ID(id), Keywords: yr.Any, Tuples: yr.All})
	}
	return rules, nil
}
