// internal/cli/options_test.go
package cli

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmap/internal/conclave"
	"shardmap/internal/config"
)

func mustParse(t *testing.T, base *config.Config, args ...string) *config.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindRun(fs, base)
	require.NoError(t, fs.Parse(args))
	return base
}

func TestDefaults(t *testing.T) {
	c := mustParse(t, config.Default(), "-t", "db.0", "-o", "out")
	require.NoError(t, Validate(c))
	assert.Equal(t, []string{"db.0"}, c.Templates)
	assert.Equal(t, 16, c.KmerSize)
	assert.Equal(t, 1, c.Conclave)
	assert.Equal(t, 1, c.Threads)
	assert.Equal(t, 100*time.Microsecond, c.Poll)
	assert.Equal(t, 10*time.Minute, c.IdleTimeout)
	assert.Equal(t, conclave.Threshold{Evalue: 0.05, Combine: conclave.And}, Threshold(c))
}

func TestFlagsOverrideConfig(t *testing.T) {
	base := config.Default()
	base.Conclave = 2
	base.Evalue = 0.01
	c := mustParse(t, base, "--templates", "a,b", "--output", "o", "--evalue", "0.2", "--combine", "or")
	require.NoError(t, Validate(c))
	assert.Equal(t, 2, c.Conclave)
	assert.Equal(t, []string{"a", "b"}, c.Templates)
	assert.Equal(t, conclave.Threshold{Evalue: 0.2, Combine: conclave.Or}, Threshold(c))
}

func TestValidateErrors(t *testing.T) {
	cases := map[string][]string{
		"no output":    {"-t", "db"},
		"no templates": {"-o", "out"},
		"both inputs":  {"-t", "db", "--manifest", "m.toml", "-o", "out"},
		"bad policy":   {"-t", "db", "-o", "out", "--conclave", "3"},
		"bad threads":  {"-t", "db", "-o", "out", "--threads", "-1"},
		"bad ceiling":  {"-t", "db", "-o", "out", "--max-fragments", "0"},
		"bad evalue":   {"-t", "db", "-o", "out", "--evalue", "2"},
		"bad identity": {"-t", "db", "-o", "out", "--identity", "101"},
		"bad combine":  {"-t", "db", "-o", "out", "--combine", "xor"},
		"bad idle":     {"-t", "db", "-o", "out", "--idle-timeout", "-1s"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			c := mustParse(t, config.Default(), args...)
			assert.Error(t, Validate(c))
		})
	}
	c := mustParse(t, config.Default(), "-t", "db")
	assert.ErrorIs(t, Validate(c), ErrNoOutput)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "c.yaml", ConfigPath([]string{"run", "--config", "c.yaml", "-o", "x"}))
	assert.Equal(t, "d.yaml", ConfigPath([]string{"run", "--config=d.yaml"}))
	assert.Equal(t, "", ConfigPath([]string{"run", "--", "--config", "c.yaml"}))
	assert.Equal(t, "", ConfigPath([]string{"run", "--config"}))
}
