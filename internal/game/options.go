package game

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// optionsRevision stamps the persisted options block. Bump when the catalog
// changes shape; a mismatch on load is logged but loading proceeds best-effort.
const optionsRevision = "1"

// revisionKey is reserved in the persisted options document and never names an
// option.
const revisionKey = "revision"

// OptionDef describes one configurable game rule. The first choice is the
// default.
type OptionDef struct {
	ID       string
	Name     string
	Desc     string
	Choices  []string
	Meanings []string
}

var optionDefinitions = []OptionDef{
	{
		ID:      "reaction_type",
		Name:    "Reaction Rules",
		Desc:    "How to handle dice used in reactions",
		Choices: []string{"4.0", "4.1"},
		Meanings: []string{
			"Must have a held die or die in phase to use a reaction.",
			"Reactions use next available die.",
		},
	},
	{
		ID:      "rolling_init",
		Name:    "Rolling Initiative Rule",
		Desc:    "Optional rule to make initiative more dynamic",
		Choices: []string{"disabled", "enabled"},
		Meanings: []string{
			"Use discrete rounds of 10 phases and reroll dice per round.",
			"Use endless sequence of phases and reroll each die as it's used, add 10 and current phase to it.",
		},
	},
}

// Option holds one catalog entry and its current value. The value is always
// one of the declared choices.
type Option struct {
	OptionDef
	Value string
}

// Set commits a new value, or fails with ErrInvalidOptionValue.
func (o *Option) Set(value string) error {
	for _, choice := range o.Choices {
		if choice == value {
			o.Value = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s valid choices are: %s", ErrInvalidOptionValue, o.Name, strings.Join(o.Choices, ", "))
}

// Options is one game session's registry of configurable rules, built from the
// fixed catalog with every option at its first declared choice.
type Options struct {
	byID   map[string]*Option
	order  []string
	logger *zap.Logger
}

// NewOptions builds a registry with catalog defaults.
func NewOptions(logger *zap.Logger) *Options {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &Options{
		byID:   make(map[string]*Option, len(optionDefinitions)),
		logger: logger,
	}
	for _, def := range optionDefinitions {
		opts.byID[def.ID] = &Option{OptionDef: def, Value: def.Choices[0]}
		opts.order = append(opts.order, def.ID)
	}
	return opts
}

// All returns the options in catalog order.
func (opts *Options) All() []*Option {
	out := make([]*Option, 0, len(opts.order))
	for _, id := range opts.order {
		out = append(out, opts.byID[id])
	}
	return out
}

// Get returns the current value of an option.
func (opts *Options) Get(id string) (string, bool) {
	opt, ok := opts.byID[id]
	if !ok {
		return "", false
	}
	return opt.Value, true
}

// Set commits a new value for a known option. Fails with ErrUnknownOption or
// ErrInvalidOptionValue; no side effects beyond the in-memory value.
func (opts *Options) Set(id, value string) error {
	opt, ok := opts.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, id)
	}
	return opt.Set(value)
}

// Apply overlays a persisted options document onto the registry. Every
// recognized key with a valid value is committed; unknown keys and invalid
// values are logged and skipped. A revision mismatch produces a single warning
// but is not fatal. The context string identifies the guild being loaded in
// log lines.
func (opts *Options) Apply(doc map[string]string, context string) {
	if rev, ok := doc[revisionKey]; ok && rev != optionsRevision {
		opts.logger.Warn("options revision mismatch",
			zap.String("found", rev),
			zap.String("expected", optionsRevision),
			zap.String("context", context))
	}

	for key, value := range doc {
		if key == revisionKey {
			continue
		}
		opt, ok := opts.byID[key]
		if !ok {
			opts.logger.Warn("bad option",
				zap.String("option", key),
				zap.String("context", context))
			continue
		}
		if err := opt.Set(value); err != nil {
			opts.logger.Warn("bad option value",
				zap.String("option", key),
				zap.String("value", value),
				zap.String("context", context))
		}
	}
}

// Serialize produces the persisted form: the revision marker plus each option
// id mapped to its current value.
func (opts *Options) Serialize() map[string]string {
	doc := make(map[string]string, len(opts.order)+1)
	doc[revisionKey] = optionsRevision
	for id, opt := range opts.byID {
		doc[id] = opt.Value
	}
	return doc
}
