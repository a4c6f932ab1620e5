/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// replaceCmd represents the replace command
var replaceCmd = &cobra.Command{
	Use:   "replace [text...]",
	Short: "Apply a character replacement type",
	Long: `Replace characters with a replacement type from replacement.types. The
arguments are joined with spaces; without arguments each stdin line is
replaced.

Examples:
  recordkit replace --type type_zenkaku 髙橋
  recordkit replace --type type_zenkaku --show < names.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		show, _ := cmd.Flags().GetBool("show")

		replacer, err := container.Replacer()
		if err != nil {
			return err
		}

		apply := func(text string) error {
			out, res, err := replacer.Replace(typeName, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			if show {
				for _, sub := range res.Substitutions {
					cmd.PrintErrf("  %d: %s\n", sub.Position, sub)
				}
			}
			return nil
		}

		if len(args) > 0 {
			return apply(strings.Join(args, " "))
		}
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			if err := apply(sc.Text()); err != nil {
				return err
			}
		}
		return sc.Err()
	},
}

func init() {
	rootCmd.AddCommand(replaceCmd)
	replaceCmd.Flags().StringP("type", "t", "", "Replacement type name (required)")
	replaceCmd.Flags().Bool("show", false, "Print each substitution to stderr")
	_ = replaceCmd.MarkFlagRequired("type")
}
