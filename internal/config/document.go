package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadDocument reads a config file as a generic map. JSON is the default
// format; .yaml and .yml files are read with YAML. A missing file yields an
// empty map.
func ReadDocument(path string) (map[string]interface{}, error) {
	data := make(map[string]interface{})

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return data, nil
	}

	if isYAML(path) {
		err = yaml.Unmarshal(content, &data)
	} else {
		err = json.Unmarshal(content, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	return data, nil
}

// WriteDocument writes a generic map back to a config file in the format
// implied by its extension.
func WriteDocument(path string, data map[string]interface{}) error {
	var (
		content []byte
		err     error
	)
	if isYAML(path) {
		content, err = yaml.Marshal(data)
	} else {
		content, err = json.MarshalIndent(data, "", "  ")
		content = append(content, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, content, 0644)
}

// SetValue sets a dot-separated key in a document, creating parent maps.
func SetValue(data map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")

	current := data
	for i := 0; i < len(parts)-1; i++ {
		if _, ok := current[parts[i]]; !ok {
			current[parts[i]] = make(map[string]interface{})
		}
		nested, ok := current[parts[i]].(map[string]interface{})
		if !ok {
			return fmt.Errorf("cannot set nested value: %s is not a map", parts[i])
		}
		current = nested
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// ParseValue converts a command-line string to a bool, int or list when
// the text looks like one. Comma-separated values become lists.
func ParseValue(value string) interface{} {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if strings.Contains(value, ",") {
		var list []interface{}
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		return list
	}
	return value
}

// SaveFolderPath stores the selected folder in the config file, keeping
// every other key. An empty file means the default config file.
func SaveFolderPath(file, folder string) (string, error) {
	if file == "" {
		var err error
		file, err = DefaultConfigFile()
		if err != nil {
			return "", fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := ReadDocument(file)
	if err != nil {
		return "", err
	}
	data["folder_path"] = folder

	if err := WriteDocument(file, data); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return file, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
