package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/crawl"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "seed", "discover", "detail", "sync", "sources", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cinesync "), out)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "detail", "ophim")
	assert.Error(t, err)

	_, err = execute(t, "discover", "ophim", "kkphim")
	assert.Error(t, err)
}

func TestSyncRejectsBadID(t *testing.T) {
	_, err := execute(t, "sync", "42")
	assert.ErrorContains(t, err, "invalid source item id")
}

func TestRenderSourcesTable(t *testing.T) {
	out := renderTable(
		[]string{"Source", "Base URL", "Enabled", "Reason"},
		sourceRows([]crawl.SourceStatus{
			{Code: "ophim", BaseURL: "https://ophim1.com", Enabled: true},
			{Code: "kkphim", BaseURL: "https://phimapi.com", Reason: "source inactive"},
		}),
		nil,
	)
	assert.Contains(t, out, "ophim")
	assert.Contains(t, out, "source inactive")
	assert.Equal(t, 2, strings.Count(out, "https://"))
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestRenderTableWithoutHeaders(t *testing.T) {
	assert.Empty(t, renderTable(nil, [][]string{{"x"}}, nil))
}
