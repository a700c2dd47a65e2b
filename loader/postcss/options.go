package postcss

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"stylepipe/common"
)

// DefaultScopedName is used when CSS modules are enabled without a pattern.
const DefaultScopedName = "[name]_[local]__[hash:base64:5]"

// DefaultInjectModule provides styleInject function at runtime.
const DefaultInjectModule = "style-inject"

// Options of the base loader as they come from the chain entry.
type Options struct {
	Extract        bool              `yaml:"extract"`
	Modules        ModulesOptions    `yaml:"modules"`
	AutoModules    *bool             `yaml:"auto_modules"`
	NamedExports   bool              `yaml:"named_exports"`
	Minimize       bool              `yaml:"minimize"`
	Inject         common.InjectMode `yaml:"inject"`
	InjectModule   string            `yaml:"inject_module"`
	InjectOptions  map[string]any    `yaml:"inject_options"`
	InjectTemplate string            `yaml:"inject_template"`
	Target         []string          `yaml:"target"`
}

// ModulesOptions accepts either boolean or mapping.
type ModulesOptions struct {
	Enable             bool   `yaml:"enable"`
	GenerateScopedName string `yaml:"generate_scoped_name"`
}

func (m *ModulesOptions) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var on bool
		if err := value.Decode(&on); err != nil {
			return fmt.Errorf("modules must be boolean or mapping: %w", err)
		}
		*m = ModulesOptions{Enable: on}
		return nil
	case yaml.MappingNode:
		type plain ModulesOptions
		p := plain{Enable: true}
		if err := value.Decode(&p); err != nil {
			return err
		}
		*m = ModulesOptions(p)
		return nil
	default:
		return fmt.Errorf("modules must be boolean or mapping, line %d", value.Line)
	}
}

func (o *Options) autoModules() bool {
	return o.AutoModules == nil || *o.AutoModules
}

func (o *Options) scopedName() string {
	if len(o.Modules.GenerateScopedName) > 0 {
		return o.Modules.GenerateScopedName
	}
	return DefaultScopedName
}

func (o *Options) injectModule() string {
	if len(o.InjectModule) > 0 {
		return o.InjectModule
	}
	return DefaultInjectModule
}
