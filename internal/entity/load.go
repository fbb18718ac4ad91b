package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type definitionFile struct {
	Entities []Definition `yaml:"entities"`
}

// LoadFiles decodes entity definitions from YAML files. A file may hold a
// single entity or a list under "entities:"; multiple documents per file are
// allowed. Directories are expanded with LoadDir.
func LoadFiles(paths ...string) ([]Definition, error) {
	var defs []Definition
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("entity definitions: %w", err)
		}
		if info.IsDir() {
			found, err := LoadDir(path)
			if err != nil {
				return nil, err
			}
			defs = append(defs, found...)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("entity definitions: %w", err)
		}
		found, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("entity definitions %s: %w", path, err)
		}
		defs = append(defs, found...)
	}
	return defs, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by name.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("entity definitions: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return LoadFiles(paths...)
}

// Decode parses YAML entity definitions from data.
func Decode(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var defs []Definition
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(node.Content) == 0 {
			continue
		}
		root := node.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: expected a mapping", root.Line)
		}
		if hasKey(root, "entities") {
			var file definitionFile
			if err := root.Decode(&file); err != nil {
				return nil, err
			}
			defs = append(defs, file.Entities...)
			continue
		}
		var def Definition
		if err := root.Decode(&def); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
