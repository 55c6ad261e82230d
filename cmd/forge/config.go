package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// localConfigDoc is the .forge/config.json contents: the server this
// checkout talks to and the state most commands act on by default.
type localConfigDoc struct {
	Server       string `json:"server"`
	CurrentState string `json:"current_state"`
}

func configPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, forgeDir, localConfig), nil
}

func loadLocalConfig() (localConfigDoc, error) {
	path, err := configPath()
	if err != nil {
		return localConfigDoc{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return localConfigDoc{}, fmt.Errorf("not a forge checkout (run `forge init` first)")
	}
	if err != nil {
		return localConfigDoc{}, err
	}
	var doc localConfigDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return localConfigDoc{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func saveLocalConfig(doc localConfigDoc) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runInit(cmd *cobra.Command, args []string) error {
	doc := localConfigDoc{Server: serverFlag, CurrentState: "main"}
	if err := saveLocalConfig(doc); err != nil {
		return fmt.Errorf("writing local config: %w", err)
	}
	fmt.Printf("initialized %s (server %s)\n", forgeDir, doc.Server)
	return nil
}

func runAttach(cmd *cobra.Command, args []string) error {
	doc, err := loadLocalConfig()
	if err != nil {
		return err
	}
	doc.CurrentState = args[0]
	if err := saveLocalConfig(doc); err != nil {
		return err
	}
	fmt.Printf("attached to state %q\n", doc.CurrentState)
	return nil
}
