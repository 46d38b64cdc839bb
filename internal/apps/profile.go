// Package apps loads the pool of app profiles (shared tenant context) and
// assigns them to simulated users.
package apps

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"chatq/internal/textgen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyPool is returned when an app pool contains no profiles.
var ErrEmptyPool = errors.New("app pool is empty")

// Profile is one tenant's shared context. Profiles are immutable once loaded
// and shared read-only by every session assigned to them.
type Profile struct {
	SystemPrompt string   `json:"systemPrompt" yaml:"systemPrompt"`
	Tools        string   `json:"tools" yaml:"tools"`
	RagDocs      []string `json:"ragDocs" yaml:"ragDocs"`
}

// RagContext returns the retrieval documents joined by newlines.
func (p *Profile) RagContext() string {
	if p == nil || len(p.RagDocs) == 0 {
		return ""
	}
	return strings.Join(p.RagDocs, "\n")
}

// Load reads an app pool from path. Files ending in .yaml or .yml are parsed
// as YAML; anything else as JSON, with comments and trailing commas allowed.
func Load(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading apps file %s: %w", path, err)
	}

	var profiles []Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &profiles)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &profiles)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing apps file %s: %w", path, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyPool)
	}
	for i, p := range profiles {
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("%s: app %d has no systemPrompt", path, i)
		}
	}
	return profiles, nil
}

// Save writes profiles to path, as YAML or indented JSON by extension.
func Save(path string, profiles []Profile) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(profiles)
	default:
		data, err = json.MarshalIndent(profiles, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("encoding apps file %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}

// GenerateOptions sizes the profiles built by Generate.
type GenerateOptions struct {
	NumApps         int
	SystemPromptLen int
	ToolsLen        int
	RagDocLen       int
	RagDocCount     int
}

// Generate builds a pool of random profiles.
func Generate(r *rand.Rand, opts GenerateOptions) []Profile {
	profiles := make([]Profile, opts.NumApps)
	for i := range profiles {
		docs := make([]string, opts.RagDocCount)
		for j := range docs {
			docs[j] = textgen.RandomString(r, opts.RagDocLen)
		}
		profiles[i] = Profile{
			SystemPrompt: textgen.RandomString(r, opts.SystemPromptLen),
			Tools:        textgen.RandomString(r, opts.ToolsLen),
			RagDocs:      docs,
		}
	}
	return profiles
}
