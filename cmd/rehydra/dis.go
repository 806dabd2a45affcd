package main

import (
	"fmt"
	"io"

	"github.com/deepnoodle-ai/rehydra"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/dis"
	"github.com/spf13/cobra"
)

var disCmd = &cobra.Command{
	Use:   "dis <template.json>",
	Short: "Disassemble a compiled template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, _ := cmd.Flags().GetString("component")
		return runDis(args[0], component, cmd.OutOrStdout())
	},
}

func init() {
	disCmd.Flags().String("component", "", "Component whose layout to disassemble")
}

func runDis(path, component string, w io.Writer) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	u, err := loadTemplate(path)
	if err != nil {
		return err
	}

	// If a component name was provided, disassemble its layout only
	tmpl := u.Template
	if component != "" {
		var ok bool
		if tmpl, ok = u.Components[component]; !ok {
			return fmt.Errorf("component %q not found", component)
		}
	}
	program, err := rehydra.Compile(tmpl)
	if err != nil {
		return err
	}
	instructions, err := dis.Disassemble(program)
	if err != nil {
		return err
	}
	if format == "json" {
		out := make([]disInstruction, len(instructions))
		for i, instr := range instructions {
			out[i] = disInstruction{
				Offset:     instr.Offset,
				Name:       instr.Name,
				Operands:   instr.Operands,
				Annotation: instr.Annotation,
			}
			if instr.Constant != nil {
				out[i].Constant = fmt.Sprintf("%v", instr.Constant)
			}
		}
		return printJSON(w, map[string]any{
			"name":         program.Name(),
			"stats":        program.Stats(),
			"instructions": out,
		})
	}
	printProgramStats(w, program)
	dis.Print(instructions, w)
	return nil
}

type disInstruction struct {
	Offset     int      `json:"offset"`
	Name       string   `json:"name"`
	Operands   []uint32 `json:"operands"`
	Annotation string   `json:"annotation,omitempty"`
	Constant   string   `json:"constant,omitempty"`
}

func printProgramStats(w io.Writer, program *bytecode.Program) {
	stats := program.Stats()
	fmt.Fprintf(w, "%s %s\n", yellow(program.Name()), faint(fmt.Sprintf("%+v", stats)))
}
