/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const stdioName = "-"

// resolveLayout accepts either a layout file path or a layout name under
// layout.dir
func resolveLayout(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("--layout is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return name, nil
	}
	if _, err := os.Stat(name); err == nil && filepath.Ext(name) != "" {
		return name, nil
	}
	return container.Config().LayoutPath(name)
}

// openInput opens the first argument, or stdin when there is none
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == stdioName {
		return io.NopCloser(cmd.InOrStdin()), "stdin", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to open input: %w", err)
	}
	return f, args[0], nil
}

// openOutput creates the --output file, or returns stdout
func openOutput(cmd *cobra.Command) (io.WriteCloser, string, error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" || path == stdioName {
		return nopWriteCloser{cmd.OutOrStdout()}, "stdout", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create output: %w", err)
	}
	return f, path, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// scanLines calls fn with each non-blank line of r
func scanLines(r io.Reader, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}
