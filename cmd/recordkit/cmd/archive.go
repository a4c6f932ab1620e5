/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/archive"
)

var errArchiveLimit = errors.New("limit reached")

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive [input]",
	Short: "Decode a record file into the archive",
	Long: `Read a record file with a layout and store every record in the archive
under archive.data_dir. Input defaults to stdin.

Examples:
  recordkit archive --layout bank transfers.dat
  recordkit archive list Data --limit 10
  recordkit archive get Data 2bd9Tg6ZYvxxvjJo5jH0CmC6ukj`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("layout")
		layoutPath, err := resolveLayout(name)
		if err != nil {
			return err
		}
		a, err := openArchive(cmd)
		if err != nil {
			return err
		}
		in, source, err := openInput(cmd, args)
		if err != nil {
			return err
		}
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

		count := 0
		for {
			rec, err := fm.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if _, err := a.Put(layoutPath, rec); err != nil {
				return fmt.Errorf("failed to archive record %d: %w", count+1, err)
			}
			count++
		}
		cmd.Printf("Archived %d records from %s\n", count, source)
		return nil
	},
}

// archiveListCmd represents the archive list command
var archiveListCmd = &cobra.Command{
	Use:   "list <recordType>",
	Short: "List archived records of a record type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := openArchive(cmd)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		n := 0
		err = a.Scan(args[0], func(e *archive.Entry) error {
			if err := enc.Encode(e); err != nil {
				return err
			}
			n++
			if limit > 0 && n >= limit {
				return errArchiveLimit
			}
			return nil
		})
		if err != nil && !errors.Is(err, errArchiveLimit) {
			return err
		}
		return nil
	},
}

// archiveGetCmd represents the archive get command
var archiveGetCmd = &cobra.Command{
	Use:   "get <recordType> <id>",
	Short: "Print one archived record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ksuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid archive id %q: %w", args[1], err)
		}
		a, err := openArchive(cmd)
		if err != nil {
			return err
		}
		e, err := a.Get(args[0], id)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(e)
	},
}

// archiveDeleteCmd represents the archive delete command
var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <recordType> <id>",
	Short: "Remove one archived record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ksuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid archive id %q: %w", args[1], err)
		}
		a, err := openArchive(cmd)
		if err != nil {
			return err
		}
		if err := a.Delete(args[0], id); err != nil {
			return err
		}
		cmd.Printf("Deleted %s/%s\n", args[0], id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveGetCmd)
	archiveCmd.AddCommand(archiveDeleteCmd)

	archiveCmd.PersistentFlags().String("data-dir", "", "Archive directory (default: archive.data_dir)")
	archiveCmd.Flags().StringP("layout", "l", "", "Layout name or file (required)")
	archiveListCmd.Flags().Int("limit", 0, "Maximum number of records to list (0 lists all)")
	_ = archiveCmd.MarkFlagRequired("layout")
}

// openArchive applies --data-dir and opens the archive
func openArchive(cmd *cobra.Command) (*archive.Archive, error) {
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		container.Config().Archive.DataDir = dir
	}
	return container.Archive()
}
