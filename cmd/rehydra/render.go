package main

import (
	"fmt"
	"io"
	"os"

	"github.com/deepnoodle-ai/rehydra"
	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var renderCmd = &cobra.Command{
	Use:   "render <template.json>",
	Short: "Render a template to markup",
	Long: `Render a template to markup. By default the markup carries marker
comments so that "rehydra hydrate" can adopt it again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noMarkers, _ := cmd.Flags().GetBool("no-markers")
		return runRender(cmd, args[0], noMarkers, cmd.OutOrStdout())
	},
}

var hydrateCmd = &cobra.Command{
	Use:   "hydrate <template.json> <page.html>",
	Short: "Rehydrate server-rendered markup and print the repaired result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHydrate(cmd, args[0], args[1], cmd.OutOrStdout())
	},
}

// renderOutput is the JSON form of a render or rehydration.
type renderOutput struct {
	Template string         `json:"template"`
	Markup   string         `json:"markup"`
	Stats    *builder.Stats `json:"stats,omitempty"`
}

func init() {
	addRenderFlags(renderCmd)
	renderCmd.Flags().Bool("no-markers", false, "Render plain markup that cannot be rehydrated")
	renderCmd.Flags().Bool("verify-markers", true, "Check that the rendered markers are balanced")
	if err := viper.BindPFlag("verify-markers", renderCmd.Flags().Lookup("verify-markers")); err != nil {
		panic(err)
	}

	addRenderFlags(hydrateCmd)
	hydrateCmd.Flags().Bool("keep-markers", true, "Leave markers in the output so it can be rehydrated again")
	if err := viper.BindPFlag("keep-markers", hydrateCmd.Flags().Lookup("keep-markers")); err != nil {
		panic(err)
	}
}

func runRender(cmd *cobra.Command, path string, noMarkers bool, w io.Writer) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	u, err := loadTemplate(path)
	if err != nil {
		return err
	}
	program, registry, err := compileUnit(u)
	if err != nil {
		return err
	}
	opts, err := renderOptions(cmd, registry)
	if err != nil {
		return err
	}

	var markup string
	var stats builder.Stats
	if noMarkers {
		doc, root, err := rehydra.Parse("")
		if err != nil {
			return err
		}
		result, err := rehydra.Render(cmd.Context(), doc, root, program, opts...)
		if err != nil {
			return err
		}
		if markup, err = doc.InnerHTML(root); err != nil {
			return err
		}
		stats = result.Stats()
	} else {
		out, result, err := rehydra.RenderToString(cmd.Context(), program, opts...)
		if err != nil {
			return err
		}
		markup, stats = out, result.Stats()
	}

	if format == "json" {
		return printJSON(w, renderOutput{Template: program.Name(), Markup: markup, Stats: &stats})
	}
	_, err = fmt.Fprintln(w, markup)
	return err
}

func runHydrate(cmd *cobra.Command, path, page string, w io.Writer) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	u, err := loadTemplate(path)
	if err != nil {
		return err
	}
	program, registry, err := compileUnit(u)
	if err != nil {
		return err
	}
	opts, err := renderOptions(cmd, registry)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(page)
	if err != nil {
		return err
	}
	doc, root, err := rehydra.Parse(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", page, err)
	}
	result, err := rehydra.Hydrate(cmd.Context(), doc, root, program, opts...)
	if err != nil {
		return err
	}
	markup, err := doc.InnerHTML(root)
	if err != nil {
		return err
	}

	stats := result.Stats()
	if format == "json" {
		return printJSON(w, renderOutput{Template: program.Name(), Markup: markup, Stats: &stats})
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s adopted=%d removed=%d created=%d\n",
		green("rehydrated"), stats.Adopted, stats.Removed, stats.Created)
	_, err = fmt.Fprintln(w, markup)
	return err
}
