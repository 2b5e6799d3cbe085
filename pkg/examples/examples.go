// Package examples reads the bundled example registry: ready-made
// structured-commands payloads a client can materialize into a new job.
package examples

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tessellab/simfarm/pkg/command"
)

const (
	manifestName        = "list.json"
	exampleCommandsName = "commands.json"
)

// Example is one entry of the bundled example registry.
type Example struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Dir         string `json:"dir"`
}

// List reads the registry manifest from the examples directory.
func List(examplesDir string) ([]Example, error) {
	b, err := os.ReadFile(filepath.Join(examplesDir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("read examples manifest: %w", err)
	}

	var list []Example
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse examples manifest: %w", err)
	}
	return list, nil
}

// Commands loads the structured-commands payload of the named example. The
// payload is opaque here; the command serializer owns its schema.
func Commands(examplesDir, name string) (command.Structured, error) {
	list, err := List(examplesDir)
	if err != nil {
		return nil, err
	}

	var found *Example
	for i := range list {
		if list[i].Name == name {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("example named %s does not exist", name)
	}

	path := filepath.Join(examplesDir, found.Dir, exampleCommandsName)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("data for example %s is not available: %w", name, err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("data for example %s is not valid JSON", name)
	}
	return command.Structured(b), nil
}
