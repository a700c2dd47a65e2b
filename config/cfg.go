package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/loader/postcss"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	PipelineConfig struct {
		Root       string   `yaml:"root,omitempty" sanitize:"path_clean"`
		Include    []string `yaml:"include,omitempty" validate:"dive,required"`
		Exclude    []string `yaml:"exclude,omitempty" validate:"dive,required"`
		Extensions []string `yaml:"extensions,omitempty" validate:"dive,startswith=."`
		// Use is a list of loader names or [name, options] pairs in
		// declaration order.
		Use         []any                  `yaml:"use,omitempty"`
		Extract     bool                   `yaml:"extract"`
		ExtractPath string                 `yaml:"extract_path,omitempty" validate:"omitempty,filepath"`
		SourceMap   common.SourceMapMode   `yaml:"source_map" validate:"gte=0"`
		Modules     postcss.ModulesOptions `yaml:"modules"`
		AutoModules *bool                  `yaml:"auto_modules,omitempty"`
		// NamedExports exposes every class name as a separate export.
		NamedExports   bool              `yaml:"named_exports"`
		Minimize       bool              `yaml:"minimize"`
		Inject         common.InjectMode `yaml:"inject" validate:"gte=0"`
		InjectModule   string            `yaml:"inject_module,omitempty"`
		InjectTemplate string            `yaml:"inject_template,omitempty" validate:"required_if=Inject 2"`
		Target         []string          `yaml:"target,omitempty"`
	}

	SassConfig struct {
		Binary         string        `yaml:"binary,omitempty"`
		IncludePaths   []string      `yaml:"include_paths,omitempty"`
		ThreadPoolSize int           `yaml:"thread_pool_size" validate:"gte=0,lte=1024"`
		Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
		CacheSize      int           `yaml:"cache_size" validate:"gte=0"`
	}

	LessConfig struct {
		Binary       string   `yaml:"binary,omitempty"`
		IncludePaths []string `yaml:"include_paths,omitempty"`
		Args         []string `yaml:"args,omitempty"`
	}

	StylusConfig struct {
		Binary       string   `yaml:"binary,omitempty"`
		IncludePaths []string `yaml:"include_paths,omitempty"`
	}

	LoadersConfig struct {
		Sass   SassConfig   `yaml:"sass"`
		Less   LessConfig   `yaml:"less"`
		Stylus StylusConfig `yaml:"stylus"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Pipeline  PipelineConfig `yaml:"pipeline"`
		Loaders   LoadersConfig  `yaml:"loaders"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above, template markers of inject
	// code are expanded at build time, not when configuration is loaded
	InjectTemplateFieldName TemplateFieldName = "inject_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(InjectTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, fmt.Errorf("configuration sanitizing failed: %w", err)
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		// loader chain is free form, check its shape early
		if _, err := cfg.Pipeline.Chain(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// Chain returns parsed loader chain, nil when configuration does not declare
// one.
func (p *PipelineConfig) Chain() (loader.UseChain, error) {
	if len(p.Use) == 0 {
		return nil, nil
	}
	chain, err := loader.ParseUseChain(p.Use)
	if err != nil {
		return nil, fmt.Errorf("bad pipeline.use: %w", err)
	}
	return chain, nil
}

// Base returns options of the base loader derived from pipeline settings.
func (p *PipelineConfig) Base() postcss.Options {
	return postcss.Options{
		Extract:        p.Extract,
		Modules:        p.Modules,
		AutoModules:    p.AutoModules,
		NamedExports:   p.NamedExports,
		Minimize:       p.Minimize,
		Inject:         p.Inject,
		InjectModule:   p.InjectModule,
		InjectTemplate: p.InjectTemplate,
		Target:         p.Target,
	}
}
