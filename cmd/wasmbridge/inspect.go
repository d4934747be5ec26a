package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/handle"
	"github.com/wippyai/wasm-bridge/runtime"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.wasm>",
	Short: "List a module's imports and exports",
	Long: `Load a module and print its imports and exports. Exported functions are
shown with their WIT signature when the module can be instantiated (it must not
require imports).`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("yaml", false, "Print YAML instead of a table")
	rootCmd.AddCommand(inspectCmd)
}

type inspection struct {
	File      string                 `yaml:"file"`
	Module    runtime.ModuleInfo     `yaml:"module"`
	Functions []runtime.FunctionInfo `yaml:"functions,omitempty"`
	Note      string                 `yaml:"note,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()
	asYAML, _ := cmd.Flags().GetBool("yaml")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := newContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	res, err := inspect(ctx, rt, data)
	if err != nil {
		return err
	}
	res.File = args[0]

	if asYAML {
		out, err := yaml.Marshal(res)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return printInspection(cmd.OutOrStdout(), res)
}

func inspect(ctx context.Context, rt *runtime.Context, data []byte) (inspection, error) {
	mod, err := rt.Load(ctx, data)
	if err != nil {
		return inspection{}, err
	}
	info, err := rt.Describe(mod)
	if err != nil {
		return inspection{}, err
	}
	res := inspection{Module: info.(runtime.ModuleInfo)}

	inst, err := rt.Instantiate(ctx, mod)
	if err != nil {
		res.Note = "signatures unavailable: " + err.Error()
		return res, nil
	}
	for _, e := range res.Module.Exports {
		if e.Type != engine.ExternFunc.String() {
			continue
		}
		fi, err := describeFunction(rt, inst, e.Name)
		if err != nil {
			return inspection{}, err
		}
		res.Functions = append(res.Functions, fi)
	}
	return res, nil
}

func describeFunction(rt *runtime.Context, inst handle.Handle, name string) (runtime.FunctionInfo, error) {
	fn, err := rt.LookupFunctionErr(inst, name)
	if err != nil {
		return runtime.FunctionInfo{}, err
	}
	info, err := rt.Describe(fn)
	if err != nil {
		return runtime.FunctionInfo{}, err
	}
	return info.(runtime.FunctionInfo), nil
}

func printInspection(w io.Writer, res inspection) error {
	m := res.Module
	fmt.Fprintf(w, "Module: %s\n", res.File)
	fmt.Fprintf(w, "Engine: %s\n", m.Engine)
	fmt.Fprintf(w, "Type:   %s\n", m.Type)
	fmt.Fprintf(w, "Size:   %d bytes\n", m.Size)

	if len(m.Imports) > 0 {
		fmt.Fprintf(w, "\nImports:\n")
		for _, i := range m.Imports {
			fmt.Fprintf(w, "  %s.%s (%s)\n", i.Module, i.Name, i.Type)
		}
	}

	wit := make(map[string]string, len(res.Functions))
	for _, f := range res.Functions {
		wit[f.Name] = f.WIT
	}

	fmt.Fprintf(w, "\nExports:\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range m.Exports {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Name, e.Type, wit[e.Name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if res.Note != "" {
		fmt.Fprintf(w, "\n%s\n", res.Note)
	}
	return nil
}
