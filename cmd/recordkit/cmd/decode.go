/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [input]",
	Short: "Convert a record file to JSON lines",
	Long: `Read a fixed-length or delimited file with a layout and write one JSON
record per line. Input defaults to stdin.

Examples:
  recordkit decode --layout books books.csv
  cat bank.dat | recordkit decode --layout ./layouts/bank.fmt -o bank.jsonl`,
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
		out, _, err := openOutput(cmd)
		if err != nil {
			in.Close()
			return err
		}
		defer out.Close()

		formatters, err := container.Formatters()
		if err != nil {
			in.Close()
			return err
		}
		fm, err := formatters.NewReader(layoutPath, source, in)
		if err != nil {
			in.Close()
			return err
		}
		defer fm.Close()

		w := bufio.NewWriter(out)
		enc := json.NewEncoder(w)
		count := 0
		for {
			rec, err := fm.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = w.Flush()
				return err
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to write record %d: %w", count+1, err)
			}
			count++
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		container.Logger().Info("decode finished", "layout", layoutPath, "source", source, "records", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringP("layout", "l", "", "Layout name or file (required)")
	decodeCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	_ = decodeCmd.MarkFlagRequired("layout")
}
