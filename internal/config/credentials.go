package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// KeyKind names a credential the application may need.
type KeyKind string

const (
	KeyGemini KeyKind = "gemini"
)

// envPrefix is shared with the viper environment binding in cmd.
const envPrefix = "DESKPILOT"

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// LookupAPIKey resolves a credential from the environment. The prefixed
// variable (DESKPILOT_GEMINI_API_KEY) is consulted first, then the variable
// named by llm.api_key_env.
func LookupAPIKey(cfg LLMConfig, kind KeyKind) (string, bool) {
	candidates := []string{envPrefix + "_" + strings.ToUpper(string(kind)) + "_API_KEY"}
	if kind == KeyGemini && cfg.APIKeyEnv != "" {
		candidates = append(candidates, cfg.APIKeyEnv)
	}
	for _, name := range candidates {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	return "", false
}
