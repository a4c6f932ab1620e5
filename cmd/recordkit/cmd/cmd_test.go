package cmd

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordkit/pkg/api"
	"github.com/ssargent/recordkit/pkg/archive"
	"github.com/ssargent/recordkit/pkg/config"
	"github.com/ssargent/recordkit/pkg/di"
	"github.com/ssargent/recordkit/pkg/replace"
)

const booksLayout = `
file-type:         "Variable"
text-encoding:     "utf-8"
field-separator:   ","
record-separator:  "\n"
quoting-delimiter: "\""

[Classifier]
1 dataKbn X

[Header]
dataKbn = "1"
1 dataKbn   X "1"
2 Title     X

[Books]
dataKbn = "2"
1 dataKbn X "2"
2 Title   X
3 ISBN    X
`

const booksData = "\"1\",\"Catalog\"\n\"2\",\"Go\",\"978\"\n\"2\",\"Rust\",\"979\"\n"

// setupCLI injects a container over temporary layout and archive
// directories and returns its configuration
func setupCLI(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Layout.Dir = filepath.Join(dir, "layouts")
	cfg.Archive.DataDir = filepath.Join(dir, "archive")
	cfg.Logging.Level = "error"
	cfg.Replacement.Types = []replace.TypeConfig{{
		Name:     "type_zenkaku",
		Encoding: "ms932",
		Mappings: map[string]string{"髙": "高", "﨑": "崎"},
	}}
	require.NoError(t, os.MkdirAll(cfg.Layout.Dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Layout.Dir, "books.fmt"), []byte(booksLayout), 0o600))

	c := di.NewContainer(cfg)
	c.SetLogOutput(&bytes.Buffer{})
	SetContainer(c)
	t.Cleanup(func() {
		_ = c.Close()
		SetContainer(nil)
	})
	return cfg
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command and returns stdout and stderr
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestInitCommand(t *testing.T) {
	SetContainer(nil)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("creates config and layout dir", func(t *testing.T) {
		out, _, err := run(t, "", "init", "--config", configPath, "--print-key")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration created")
		assert.Contains(t, out, "API key: ")

		cfg, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.Len(t, cfg.Server.APIKey, 64)
		assert.DirExists(t, cfg.Layout.Dir)
	})

	t.Run("keeps existing config", func(t *testing.T) {
		before, err := config.LoadConfig(configPath)
		require.NoError(t, err)

		out, _, err := run(t, "", "init", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		after, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, before.Server.APIKey, after.Server.APIKey)
	})

	t.Run("force regenerates the key", func(t *testing.T) {
		before, err := config.LoadConfig(configPath)
		require.NoError(t, err)

		_, _, err = run(t, "", "init", "--config", configPath, "--force")
		require.NoError(t, err)

		after, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.NotEqual(t, before.Server.APIKey, after.Server.APIKey)
	})
}

func TestValidateCommand(t *testing.T) {
	cfg := setupCLI(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Layout.Dir, "bad.fmt"), []byte("[Data]\n1 a QQ\n"), 0o600))

	out, _, err := run(t, "", "validate", "books")
	require.NoError(t, err)
	assert.Contains(t, out, "OK   books (Variable, utf-8): Header, Books")

	out, _, err = run(t, "", "validate", "books", "bad", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 layouts are invalid")
	assert.Contains(t, out, "FAIL bad")
	assert.Contains(t, out, "FAIL missing")
}

func TestDecodeCommand(t *testing.T) {
	setupCLI(t)

	out, _, err := run(t, booksData, "decode", "--layout", "books")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"recordType":"Header","data":{"dataKbn":"1","Title":"Catalog"}}`, lines[0])
	assert.JSONEq(t, `{"recordType":"Books","data":{"dataKbn":"2","Title":"Go","ISBN":"978"}}`, lines[1])
}

func TestDecodeCommand_InvalidData(t *testing.T) {
	setupCLI(t)

	_, _, err := run(t, "\"2\",\"Go\"\n", "decode", "--layout", "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field count does not match")
	assert.Contains(t, err.Error(), "source=[stdin]")
}

func TestEncodeCommand(t *testing.T) {
	cfg := setupCLI(t)
	input := `{"recordType":"Header","data":{"Title":"Catalog"}}

{"recordType":"","data":{"dataKbn":"2","Title":"Go","ISBN":"978"}}
`
	outPath := filepath.Join(t.TempDir(), "out", "books.csv")
	_, _, err := run(t, input, "encode", "--layout", filepath.Join(cfg.Layout.Dir, "books.fmt"), "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "\"1\",\"Catalog\"\n\"2\",\"Go\",\"978\"\n", string(data))

	_, _, err = run(t, "{not json}\n", "encode", "--layout", "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin line 1")
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	setupCLI(t)

	decoded, _, err := run(t, booksData, "decode", "--layout", "books")
	require.NoError(t, err)
	encoded, _, err := run(t, decoded, "encode", "--layout", "books")
	require.NoError(t, err)
	assert.Equal(t, booksData, encoded)
}

func TestReplaceCommand(t *testing.T) {
	setupCLI(t)

	out, stderr, err := run(t, "", "replace", "--type", "type_zenkaku", "--show", "髙﨑", "さん")
	require.NoError(t, err)
	assert.Equal(t, "高崎 さん\n", out)
	assert.Contains(t, stderr, "U+9AD9")

	out, _, err = run(t, "髙橋\n山﨑\n", "replace", "-t", "type_zenkaku")
	require.NoError(t, err)
	assert.Equal(t, "高橋\n山崎\n", out)

	_, _, err = run(t, "", "replace", "--type", "nope", "x")
	assert.ErrorIs(t, err, replace.ErrUnknownType)
}

func TestArchiveCommands(t *testing.T) {
	setupCLI(t)
	dataDir := filepath.Join(t.TempDir(), "custom-archive")

	out, _, err := run(t, booksData, "archive", "--layout", "books", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Archived 3 records from stdin")
	assert.DirExists(t, dataDir)

	out, _, err = run(t, "", "archive", "list", "Books", "--data-dir", dataDir)
	require.NoError(t, err)
	var entries []archive.Entry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var e archive.Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "Books", entries[0].RecordType)

	out, _, err = run(t, "", "archive", "list", "Books", "--limit", "1", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)

	id := entries[0].ID.String()
	title, err := entries[0].Record.GetString("Title")
	require.NoError(t, err)
	out, _, err = run(t, "", "archive", "get", "Books", id, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"Title":"`+title+`"`)

	_, _, err = run(t, "", "archive", "delete", "Books", id, "--data-dir", dataDir)
	require.NoError(t, err)
	_, _, err = run(t, "", "archive", "get", "Books", id, "--data-dir", dataDir)
	assert.ErrorIs(t, err, archive.ErrNotFound)

	_, _, err = run(t, "", "archive", "get", "Books", "bogus", "--data-dir", dataDir)
	assert.Error(t, err)
}

type fakeStarter struct {
	config api.ServerConfig
	deps   api.Dependencies
}

func (f *fakeStarter) StartServer(ctx context.Context, config api.ServerConfig, deps api.Dependencies) error {
	f.config = config
	f.deps = deps
	return nil
}

type fakeFactory struct {
	starter *fakeStarter
}

func (f *fakeFactory) CreateServerStarter() api.ServerStarter { return f.starter }

func TestServeCommand(t *testing.T) {
	cfg := setupCLI(t)
	starter := &fakeStarter{}
	container.SetServerFactory(&fakeFactory{starter: starter})

	t.Run("requires an api key", func(t *testing.T) {
		_, _, err := run(t, "", "serve")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("flags override config", func(t *testing.T) {
		_, _, err := run(t, "", "serve", "--api-key", "secret", "--port", "9100", "--no-archive")
		require.NoError(t, err)
		assert.Equal(t, 9100, starter.config.Port)
		assert.Equal(t, "secret", starter.config.APIKey)
		assert.Equal(t, cfg.Layout.Dir, starter.config.LayoutDir)
		assert.Nil(t, starter.deps.Archive)
		assert.NotNil(t, starter.deps.Formatters)
		assert.True(t, starter.deps.Replacer.Has("type_zenkaku"))
	})

	t.Run("archive enabled", func(t *testing.T) {
		_, _, err := run(t, "", "serve", "--api-key", "secret")
		require.NoError(t, err)
		assert.NotNil(t, starter.deps.Archive)
	})
}

func TestRenderUnit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Layout.Dir = "/etc/recordkit/layouts"
	cfg.Archive.DataDir = "/var/lib/recordkit"

	unit := renderUnit(cfg, "/etc/recordkit/config.yaml", "recordkit", "/usr/local/bin/recordkit")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/recordkit serve --config /etc/recordkit/config.yaml")
	assert.Contains(t, unit, "User=recordkit")
	assert.Contains(t, unit, "ReadOnlyPaths=/etc/recordkit/layouts")
	assert.Contains(t, unit, "ReadWritePaths=/etc/recordkit\n")
	assert.Contains(t, unit, "ReadWritePaths=/var/lib/recordkit\n")
	assert.Equal(t, []string{"-u", serviceName, "-f", "-n20"}, journalArgs(true, 20))
}

func TestResolveLayout(t *testing.T) {
	cfg := setupCLI(t)

	p, err := resolveLayout("books")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Layout.Dir, "books.fmt"), p)

	p, err = resolveLayout("./other/bank.fmt")
	require.NoError(t, err)
	assert.Equal(t, "./other/bank.fmt", p)

	_, err = resolveLayout("")
	assert.Error(t, err)
}
