/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/record"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode [input]",
	Short: "Convert JSON lines to a record file",
	Long: `Read one JSON record per line and write them with a layout. Records with
an empty recordType are matched against the layout's conditions. Input
defaults to stdin.

Examples:
  recordkit encode --layout books books.jsonl -o books.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("layout")
		layoutPath, err := resolveLayout(name)
		if err != nil {
			return err
		}
		in, source, err := openInput(cmd, args)
		if err != nil {
			return err
		}
		defer in.Close()

		formatters, err := container.Formatters()
		if err != nil {
			return err
		}
		out, target, err := openOutput(cmd)
		if err != nil {
			return err
		}
		fm, err := formatters.NewWriter(layoutPath, target, out)
		if err != nil {
			out.Close()
			return err
		}

		count := 0
		err = scanLines(in, func(n int, line []byte) error {
			rec := &record.DataRecord{}
			if err := json.Unmarshal(line, rec); err != nil {
				return fmt.Errorf("%s line %d: invalid record: %w", source, n, err)
			}
			if err := fm.WriteRecord(rec); err != nil {
				return err
			}
			count++
			return nil
		})
		if cerr := fm.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to write output: %w", cerr)
		}
		if err != nil {
			return err
		}
		container.Logger().Info("encode finished", "layout", layoutPath, "target", target, "records", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringP("layout", "l", "", "Layout name or file (required)")
	encodeCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	_ = encodeCmd.MarkFlagRequired("layout")
}
