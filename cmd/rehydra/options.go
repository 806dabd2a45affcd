package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/deepnoodle-ai/rehydra"
	"github.com/deepnoodle-ai/rehydra/builtins"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addRenderFlags registers the flags shared by commands that execute a
// template.
func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("data", "d", "", "JSON file whose value is the template's this")
	cmd.Flags().StringToString("arg", nil, "Template argument as name=value (repeatable)")
	cmd.Flags().StringToString("var", nil, "Dynamic variable as name=value (repeatable)")
}

// renderConfig merges the config file, environment and flags into a
// library configuration.
func renderConfig() (*rehydra.Config, error) {
	cfg := &rehydra.Config{
		LogLevel:      viper.GetString("log-level"),
		MaxFrameDepth: viper.GetInt("max-frame-depth"),
	}
	if viper.IsSet("keep-markers") {
		keep := viper.GetBool("keep-markers")
		cfg.KeepMarkers = &keep
	}
	if viper.IsSet("verify-markers") {
		verify := viper.GetBool("verify-markers")
		cfg.VerifyMarkers = &verify
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// compileUnit compiles a template and its components. The returned registry
// holds the builtin helpers and a template-only definition per component.
func compileUnit(u *unit) (*bytecode.Program, *env.Registry, error) {
	registry := builtins.Registry()
	for name, tmpl := range u.Components {
		layout, err := rehydra.Compile(tmpl)
		if err != nil {
			return nil, nil, fmt.Errorf("component %s: %w", name, err)
		}
		registry.RegisterComponent(name, &env.Definition{
			Name:    name,
			Layout:  layout,
			Manager: env.TemplateOnly{},
		})
	}
	program, err := rehydra.Compile(u.Template)
	if err != nil {
		return nil, nil, err
	}
	return program, registry, nil
}

// renderOptions collects the inputs of a render from the command's flags.
func renderOptions(cmd *cobra.Command, registry *env.Registry) ([]rehydra.Option, error) {
	cfg, err := renderConfig()
	if err != nil {
		return nil, err
	}
	opts := []rehydra.Option{rehydra.WithConfig(cfg), rehydra.WithRegistry(registry)}

	if path, _ := cmd.Flags().GetString("data"); path != "" {
		self, err := readData(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rehydra.WithSelf(self))
	}
	if args, _ := cmd.Flags().GetStringToString("arg"); len(args) > 0 {
		opts = append(opts, rehydra.WithArgs(toAny(args)))
	}
	if vars, _ := cmd.Flags().GetStringToString("var"); len(vars) > 0 {
		opts = append(opts, rehydra.WithDynamicVars(toAny(vars)))
	}
	return opts, nil
}

func readData(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
