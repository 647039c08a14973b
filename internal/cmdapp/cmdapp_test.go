package cmdapp

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
)

func newTestRunner() (*Runner, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errs := &bytes.Buffer{}
	logger := logging.NewLoggerWithWriter(false, false, errs)
	return NewRunner(logger, out, errs, nil), out, errs
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

func TestProxyPassesArgvVerbatim(t *testing.T) {
	requireUnix(t)
	r, out, _ := newTestRunner()
	app := &config.App{
		Key:     "hello",
		Type:    config.TypeCmd,
		Mode:    config.ModeProxy,
		Command: []string{"echo", "hello"},
	}

	err := r.Run(context.Background(), app, []string{"world", "--verbose"})
	require.NoError(t, err)
	assert.Equal(t, "hello world --verbose\n", out.String())
}

func TestExitCodePropagates(t *testing.T) {
	requireUnix(t)
	r, _, _ := newTestRunner()
	app := &config.App{
		Key:     "fail",
		Type:    config.TypeCmd,
		Mode:    config.ModeProxy,
		Command: []string{"sh", "-c", "exit 3"},
	}

	err := r.Run(context.Background(), app, nil)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
}

func TestMissingExecutable(t *testing.T) {
	r, _, _ := newTestRunner()
	app := &config.App{
		Key:     "ghost",
		Type:    config.TypeCmd,
		Mode:    config.ModeProxy,
		Command: []string{"definitely-not-a-real-binary-42"},
	}

	err := r.Run(context.Background(), app, nil)
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr), "a missing binary is not an exit code")
}

func TestAppEnvReachesSubprocess(t *testing.T) {
	requireUnix(t)
	r, out, _ := newTestRunner()
	app := &config.App{
		Key:     "env",
		Type:    config.TypeCmd,
		Mode:    config.ModeProxy,
		Command: []string{"sh", "-c", `printf '%s' "$GREETING"`},
		Env:     map[string]string{"GREETING": "bonjour"},
	}

	err := r.Run(context.Background(), app, nil)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out.String())
}

func TestCuratedMapsParams(t *testing.T) {
	requireUnix(t)
	r, out, _ := newTestRunner()
	app := &config.App{
		Key:     "search",
		Type:    config.TypeCmd,
		Mode:    config.ModeCurated,
		Command: []string{"echo"},
		Params: []config.CmdParam{
			{Name: "query", Required: true, MapsTo: "--grep"},
			{Name: "path", MapsTo: ""},
		},
	}

	err := r.Run(context.Background(), app, []string{"--path", "src", "--query", "todo"})
	require.NoError(t, err)
	assert.Equal(t, "--grep todo src\n", out.String())
}

func TestBuildArgsDashedParamNames(t *testing.T) {
	// Configs declare params with leading dashes (`name: "--env"`); the
	// flag on the command line is still --env.
	app := &config.App{
		Key:  "deploy",
		Mode: config.ModeCurated,
		Params: []config.CmdParam{
			{Name: "--env", Required: true, MapsTo: "--environment"},
			{Name: "--service"},
		},
	}

	got, err := BuildArgs(app, []string{"--env", "prod", "--service", "api"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--environment", "prod", "api"}, got)

	_, err = BuildArgs(app, []string{"--service", "api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--env")
}

func TestBuildArgs(t *testing.T) {
	app := &config.App{
		Key:  "search",
		Mode: config.ModeCurated,
		Params: []config.CmdParam{
			{Name: "query", Required: true, MapsTo: "--grep"},
			{Name: "limit", MapsTo: "-n"},
			{Name: "path"},
		},
	}

	tests := []struct {
		name    string
		argv    []string
		want    []string
		wantErr string
	}{
		{
			name: "all params in declared order",
			argv: []string{"--path", ".", "--query", "fixme", "--limit", "5"},
			want: []string{"--grep", "fixme", "-n", "5", "."},
		},
		{
			name: "optional params omitted",
			argv: []string{"--query", "fixme"},
			want: []string{"--grep", "fixme"},
		},
		{
			name:    "required param missing",
			argv:    []string{"--path", "."},
			wantErr: "--query",
		},
		{
			name:    "undeclared flag rejected",
			argv:    []string{"--query", "x", "--nope", "y"},
			wantErr: "nope",
		},
		{
			name:    "positional arguments rejected",
			argv:    []string{"--query", "x", "stray"},
			wantErr: "positional",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildArgs(app, tt.argv)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCmdModeValidation(t *testing.T) {
	r, _, _ := newTestRunner()
	app := &config.App{
		Key:     "bad",
		Type:    config.TypeCmd,
		Mode:    config.ModeDynamic,
		Command: []string{"echo"},
	}

	err := r.Run(context.Background(), app, nil)
	require.Error(t, err)
}
