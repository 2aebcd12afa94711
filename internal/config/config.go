// Package config resolves the settings of an aqs command from flags,
// AQS_* environment variables, a .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pavelanni/aqs/internal/evaluator"
	"github.com/pavelanni/aqs/internal/loader"
)

// Checkpoint backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the resolved configuration of one command invocation.
type Config struct {
	DataDir   string `validate:"required"`
	OutputDir string `validate:"required"`

	CheckpointBackend string `validate:"oneof=file sqlite"`
	// CheckpointPath is a directory for the file backend and a database
	// file for sqlite.
	CheckpointPath string `validate:"required"`

	Models            []string `validate:"required,min=1,dive,required"`
	LLMURL            string   `validate:"required,url"`
	LLMKey            string
	RequestsPerMinute int `validate:"gte=0"`

	FewQuestionsThreshold int     `validate:"gte=0"`
	MismatchThreshold     float64 `validate:"gte=0,lte=100"`
	ModuleLimit           int     `validate:"gte=0"`
	TranscriptLimit       int     `validate:"gte=0"`
	PDFLimit              int     `validate:"gte=0"`

	PricingFile string
	PromptsDir  string
	Lang        string `validate:"oneof=en ru"`
	MetricsAddr string `validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration. Flags use these values as
// their defaults.
func Default() Config {
	lim := loader.DefaultLimits()
	ev := evaluator.DefaultConfig()
	return Config{
		DataDir:               "data",
		OutputDir:             "output",
		CheckpointBackend:     BackendFile,
		Models:                []string{"gemini-2.0-flash"},
		LLMURL:                "https://generativelanguage.googleapis.com/v1beta/openai/",
		RequestsPerMinute:     0,
		FewQuestionsThreshold: ev.FewQuestionsThreshold,
		MismatchThreshold:     ev.MismatchThreshold,
		ModuleLimit:           lim.Module,
		TranscriptLimit:       lim.Transcript,
		PDFLimit:              lim.PDF,
		Lang:                  "en",
	}
}

// LoadDotEnv reads .env from the working directory into the process
// environment. A missing file is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
}

// FromViper builds and validates a Config from v. Keys are the flag names;
// keys a command does not define keep their defaults.
func FromViper(v *viper.Viper) (Config, error) {
	d := Default()
	cfg := Config{
		DataDir:               stringOr(v, "data-dir", d.DataDir),
		OutputDir:             stringOr(v, "output-dir", d.OutputDir),
		CheckpointBackend:     strings.ToLower(stringOr(v, "checkpoint-backend", d.CheckpointBackend)),
		CheckpointPath:        v.GetString("checkpoint-path"),
		Models:                models(v, d.Models),
		LLMURL:                stringOr(v, "llm-url", d.LLMURL),
		LLMKey:                v.GetString("llm-key"),
		RequestsPerMinute:     intOr(v, "rpm", d.RequestsPerMinute),
		FewQuestionsThreshold: intOr(v, "few-questions", d.FewQuestionsThreshold),
		MismatchThreshold:     floatOr(v, "mismatch-threshold", d.MismatchThreshold),
		ModuleLimit:           intOr(v, "module-limit", d.ModuleLimit),
		TranscriptLimit:       intOr(v, "transcript-limit", d.TranscriptLimit),
		PDFLimit:              intOr(v, "pdf-limit", d.PDFLimit),
		PricingFile:           v.GetString("pricing-file"),
		PromptsDir:            v.GetString("prompts-dir"),
		Lang:                  stringOr(v, "lang", d.Lang),
		MetricsAddr:           v.GetString("metrics-addr"),
	}
	if cfg.LLMKey == "" {
		cfg.LLMKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = defaultCheckpointPath(cfg.CheckpointBackend, cfg.OutputDir)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultCheckpointPath(backend, outputDir string) string {
	if backend == BackendSQLite {
		return filepath.Join(outputDir, "aqs.db")
	}
	return filepath.Join(outputDir, ".checkpoints")
}

// models reads the model list. Entries may also be comma separated, as in
// AQS_MODEL=a,b. GEMINI_MODEL_NAME is used when nothing else names a model.
func models(v *viper.Viper, def []string) []string {
	var out []string
	for _, entry := range v.GetStringSlice("model") {
		for _, m := range strings.Split(entry, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	if env := strings.TrimSpace(os.Getenv("GEMINI_MODEL_NAME")); env != "" {
		return []string{env}
	}
	return def
}

func stringOr(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

func intOr(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	return v.GetInt(key)
}

func floatOr(v *viper.Viper, key string, def float64) float64 {
	if !v.IsSet(key) {
		return def
	}
	return v.GetFloat64(key)
}

// Limits returns the content budgets.
func (c Config) Limits() loader.Limits {
	return loader.Limits{Module: c.ModuleLimit, Transcript: c.TranscriptLimit, PDF: c.PDFLimit}
}

// Evaluation returns the evaluator thresholds and budgets.
func (c Config) Evaluation() evaluator.Config {
	return evaluator.Config{
		FewQuestionsThreshold: c.FewQuestionsThreshold,
		MismatchThreshold:     c.MismatchThreshold,
		Limits:                c.Limits(),
	}
}
