package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"talkml/agent/internal/config"
	"talkml/agent/internal/grammar"
)

var errNoDialogueID = errors.New("no dialogue id configured")

// assets is everything read from disk before the dialogue starts.
type assets struct {
	tkml       string
	grammars   *grammar.Set
	dialogueID string
}

func loadAssets(fs afero.Fs, cfg config.Config) (assets, error) {
	var a assets

	if cfg.Script.TKMLFile == "" {
		return a, errors.New("script.tkml_file is required")
	}
	b, err := afero.ReadFile(fs, cfg.Script.TKMLFile)
	if err != nil {
		return a, fmt.Errorf("read script: %w", err)
	}
	a.tkml = string(b)

	a.grammars = grammar.NewSet()
	if cfg.Script.GrammarFile != "" {
		if a.grammars, err = grammar.Load(fs, cfg.Script.GrammarFile); err != nil {
			return a, err
		}
	}

	a.dialogueID = strings.TrimSpace(cfg.Script.DialogueID)
	if a.dialogueID == "" && cfg.Script.DialogueIDFile != "" {
		b, err := afero.ReadFile(fs, cfg.Script.DialogueIDFile)
		if err != nil {
			return a, fmt.Errorf("read dialogue id: %w", err)
		}
		a.dialogueID = strings.TrimSpace(string(b))
	}
	if a.dialogueID == "" {
		return a, errNoDialogueID
	}
	return a, nil
}
