package loader

import (
	"fmt"

	"stylepipe/common"
)

// Use is single chain entry.
type Use struct {
	Name    string
	Options Options
}

// UseChain is ordered list of loader invocations in declaration order.
// Declaration order reads as composition right-to-left: the last declared
// entry is executed first.
type UseChain []Use

// DefaultChain is used when configuration does not specify one.
func DefaultChain() UseChain {
	return UseChain{
		{Name: common.LoaderKindSass.String()},
		{Name: common.LoaderKindStylus.String()},
		{Name: common.LoaderKindLess.String()},
	}
}

// ParseUseChain converts decoded configuration. Entry is either loader name
// or two element list of name and options.
func ParseUseChain(entries []any) (UseChain, error) {
	chain := make(UseChain, 0, len(entries))
	for i, e := range entries {
		use, err := parseUse(e)
		if err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		chain = append(chain, use)
	}
	return chain, nil
}

func parseUse(e any) (Use, error) {
	switch v := e.(type) {
	case string:
		if len(v) == 0 {
			return Use{}, fmt.Errorf("empty loader name: %w", ErrMalformedUse)
		}
		return Use{Name: v}, nil
	case Use:
		return v, nil
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return Use{}, fmt.Errorf("expected [name, options], got %d elements: %w", len(v), ErrMalformedUse)
		}
		name, ok := v[0].(string)
		if !ok || len(name) == 0 {
			return Use{}, fmt.Errorf("loader name must be non empty string, got %T: %w", v[0], ErrMalformedUse)
		}
		use := Use{Name: name}
		if len(v) == 2 && v[1] != nil {
			opts, err := toOptions(v[1])
			if err != nil {
				return Use{}, err
			}
			use.Options = opts
		}
		return use, nil
	default:
		return Use{}, fmt.Errorf("unexpected entry type %T: %w", e, ErrMalformedUse)
	}
}

func toOptions(v any) (Options, error) {
	switch m := v.(type) {
	case Options:
		return m, nil
	case map[string]any:
		return Options(m), nil
	default:
		return nil, fmt.Errorf("loader options must be a map, got %T: %w", v, ErrMalformedUse)
	}
}

// WithBase returns chain with base loader entry prepended (so that it is
// executed last) unless chain already has it.
func (c UseChain) WithBase(opts Options) UseChain {
	base := common.LoaderKindPostcss.String()
	for _, u := range c {
		if u.Name == base {
			return c
		}
	}
	return append(UseChain{{Name: base, Options: opts}}, c...)
}

// Names returns loader names in declaration order.
func (c UseChain) Names() []string {
	names := make([]string, 0, len(c))
	for _, u := range c {
		names = append(names, u.Name)
	}
	return names
}
