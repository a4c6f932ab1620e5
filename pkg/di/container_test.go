package di

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordkit/pkg/config"
	"github.com/ssargent/recordkit/pkg/replace"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Layout.Dir = t.TempDir()
	cfg.Archive.DataDir = filepath.Join(t.TempDir(), "archive")
	return cfg
}

func TestContainer_Defaults(t *testing.T) {
	c := NewContainer(nil)
	assert.Equal(t, config.DefaultConfig(), c.Config())
	assert.NotNil(t, c.GetServerFactory())
	assert.NotNil(t, c.Logger())
	assert.NoError(t, c.Close())
}

func TestContainer_SharesServices(t *testing.T) {
	c := NewContainer(testConfig(t))
	c.SetLogOutput(&bytes.Buffer{})

	f1, err := c.Formatters()
	require.NoError(t, err)
	f2, err := c.Formatters()
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Same(t, f1.Cache(), f2.Cache())

	r1, err := c.Replacer()
	require.NoError(t, err)
	r2, err := c.Replacer()
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestContainer_LoggerFollowsConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	var buf bytes.Buffer
	c := NewContainer(cfg)
	c.SetLogOutput(&buf)

	c.Logger().Info("hidden")
	c.Logger().Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestContainer_InvalidReplacementTypes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Replacement.Types = []replace.TypeConfig{{Name: "bad", Encoding: "no-such-encoding"}}

	c := NewContainer(cfg)
	c.SetLogOutput(&bytes.Buffer{})

	_, err := c.Formatters()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build replacement types")
}

func TestContainer_ServerDependencies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "secret"
	c := NewContainer(cfg)
	c.SetLogOutput(&bytes.Buffer{})
	defer c.Close()

	deps, err := c.ServerDependencies(false)
	require.NoError(t, err)
	assert.Nil(t, deps.Archive)
	assert.NotNil(t, deps.Metrics)
	assert.NotNil(t, deps.Formatters)
	assert.Same(t, c.EnableMetrics(), deps.Metrics)

	deps, err = c.ServerDependencies(true)
	require.NoError(t, err)
	require.NotNil(t, deps.Archive)
	assert.DirExists(t, cfg.Archive.DataDir)

	sc := c.ServerConfig()
	assert.Equal(t, "secret", sc.APIKey)
	assert.Equal(t, cfg.Layout.Dir, sc.LayoutDir)
	assert.Equal(t, cfg.Server.Port, sc.Port)

	require.NoError(t, c.Close())
	a, err := c.Archive()
	require.NoError(t, err)
	assert.NotSame(t, deps.Archive, a)
}

func TestContainer_ArchiveRequiresDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.DataDir = ""
	c := NewContainer(cfg)

	_, err := c.Archive()
	assert.Error(t, err)
}
