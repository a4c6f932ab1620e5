/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/codec"
	"github.com/ssargent/recordkit/pkg/layout"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <layout>...",
	Short: "Check layout files",
	Long: `Parse and initialize layout files, reporting every error found.

A layout is a file path or a name under layout.dir.

Examples:
  recordkit validate books
  recordkit validate ./layouts/bank.fmt ./layouts/books.fmt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatters, err := container.Formatters()
		if err != nil {
			return err
		}

		failed := 0
		for _, name := range args {
			def, err := validateLayout(formatters, name)
			if err != nil {
				failed++
				cmd.Printf("FAIL %s: %v\n", name, err)
				continue
			}
			types := make([]string, 0, len(def.Records()))
			for _, r := range def.Records() {
				types = append(types, r.Name)
			}
			cmd.Printf("OK   %s (%s, %s): %s\n", name, def.FileType(), def.EncodingName(), strings.Join(types, ", "))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d layouts are invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateLayout(formatters *codec.Factory, name string) (*layout.Definition, error) {
	path, err := resolveLayout(name)
	if err != nil {
		return nil, err
	}
	def, err := formatters.Cache().Load(path)
	if err != nil {
		return nil, err
	}
	if err := def.Initialize(formatters.Registry()); err != nil {
		return nil, err
	}
	return def, nil
}
