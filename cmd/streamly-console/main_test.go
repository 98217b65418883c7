package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppermq/streamly-console/internal/cmdutils"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd(&options{})

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.ElementsMatch(t, []string{"version", "api-server", "housekeeper", "migrate"}, names)

	tests := []struct {
		flag        string
		wantDefault string
	}{
		{flag: "graceful-shutdown", wantDefault: "1s"},
		{flag: cmdutils.ConfigDirFlag, wantDefault: ""},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.wantDefault, f.DefValue)
		})
	}
}

func TestNewRootCmd_ConfigDir(t *testing.T) {
	cmd := newRootCmd(&options{})
	cmd.SetArgs([]string{"migrate", "--" + cmdutils.ConfigDirFlag, t.TempDir()})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(t.Context())
	require.Error(t, err, "no config.yaml to load")
	assert.Contains(t, err.Error(), "loading config")
}

func TestExecute_UnknownCommand(t *testing.T) {
	assert.Equal(t, 1, execute([]string{"nope", "--graceful-shutdown", "0s"}))
}
