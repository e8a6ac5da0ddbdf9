// Package config resolves and decodes the server's YAML configuration file:
// the per-language linter/formatter pipelines, the optional symbol-search
// tool, and the optional AI inline-assist providers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LinterConfig describes one external linter invocation for a language.
type LinterConfig struct {
	Program       string `yaml:"program"`
	Args          []string `yaml:"args"`
	UseStdin      bool   `yaml:"use_stdin"`
	UseStderr     bool   `yaml:"use_stderr"`
	PatternRaw    string `yaml:"pattern"`
	Pattern       *regexp.Regexp `yaml:"-"`
	FilenameGroup int  `yaml:"filename_group"`
	LineGroup     int  `yaml:"line_group"`
	StartColGroup int  `yaml:"start_col_group"`
	EndColGroup   int  `yaml:"end_col_group"`
	SeverityGroup int  `yaml:"severity_group"`
	// DescriptionGroup is nil for "no description", -1 for "the line that
	// follows the matching line", or a positive capture-group index.
	DescriptionGroup *int `yaml:"description_group"`
}

// FormatterConfig describes one external formatter invocation for a language.
type FormatterConfig struct {
	Program              string   `yaml:"program"`
	Args                 []string `yaml:"args"`
	UseStdin             bool     `yaml:"use_stdin"`
	StderrIndicatesError bool     `yaml:"stderr_indicates_error"`
}

// LanguageConfig is the complete pipeline configuration for one LSP
// language id.
type LanguageConfig struct {
	Linters     []LinterConfig    `yaml:"linters"`
	Formatters  []FormatterConfig `yaml:"formatters"`
	RootMarkers []string          `yaml:"root_markers"`
}

// SymbolsConfig configures the workspace-symbol tag extractor (C10).
type SymbolsConfig struct {
	Program     string   `yaml:"program"`
	Args        []string `yaml:"args"`
	MaxSymbols  int      `yaml:"max_symbols"`
	TimeoutSecs int      `yaml:"timeout_seconds"`
	// Excludes lists ctags --exclude patterns (e.g. "*.min.js", ".git"),
	// passed through to the extractor once per pattern.
	Excludes []string `yaml:"excludes"`
}

// ProviderConfig names one LLM completion provider and model for inline
// assist (C11). The actual HTTP client is constructed elsewhere; this is
// only the declarative binding.
type ProviderConfig struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
}

// AIConfig configures inline-assist fan-out.
type AIConfig struct {
	Providers          []ProviderConfig `yaml:"providers"`
	PromptTemplate     string           `yaml:"prompt_template"`
	IncludeWorkspace   bool             `yaml:"include_workspace_files"`
	WorkspaceAllowGlob []string         `yaml:"workspace_allow_glob"`
	MaxFileBytes       int64            `yaml:"max_file_bytes"`
}

// Config is the decoded top-level document.
type Config struct {
	Languages map[string]LanguageConfig `yaml:"languages"`
	Symbols   *SymbolsConfig            `yaml:"symbols"`
	AI        *AIConfig                 `yaml:"ai"`
}

// Load resolves the XDG config path, reads it via viper (for the directory
// search and env-var overrides of XDG_CONFIG_HOME/HOME), then hands the raw
// bytes to yaml.v3 for decoding — mapstructure has no way to express the
// "compile this string as a regex" step that LinterConfig needs, so struct
// population bypasses viper's own Unmarshal. Capture indices are not checked
// here; lint.Config.Validate checks them when a parser is built.
func Load(log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	for _, dir := range searchPaths() {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn("no pickls config file found, running with no languages configured")
			return &Config{Languages: map[string]LanguageConfig{}}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	raw, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("re-reading config file %s: %w", v.ConfigFileUsed(), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config yaml: %w", err)
	}

	var top map[string]interface{}
	if err := yaml.Unmarshal(raw, &top); err == nil {
		for key := range top {
			switch key {
			case "languages", "symbols", "ai":
			default:
				log.Info("ignoring unknown top-level config key", zap.String("key", key))
			}
		}
	}

	for langID, lang := range cfg.Languages {
		for i := range lang.Linters {
			lc := &lang.Linters[i]
			pattern, err := regexp.Compile(lc.PatternRaw)
			if err != nil {
				log.Warn("linter pattern failed to compile, linter will be skipped",
					zap.String("language", langID), zap.String("linter", lc.Program), zap.Error(err))
				continue
			}
			lc.Pattern = pattern
		}
		cfg.Languages[langID] = lang
	}

	return &cfg, nil
}

// searchPaths returns the directories pickls looks for config.yaml in,
// honouring XDG_CONFIG_HOME with a $HOME/.config fallback.
func searchPaths() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "pickls"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "pickls"))
	}
	return dirs
}
