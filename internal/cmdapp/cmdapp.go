// Package cmdapp runs plain command applications: proxy mode hands argv
// to the configured executable verbatim, curated mode exposes only the
// declared parameters and builds the underlying command line from them.
package cmdapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
)

// ExitError carries a subprocess exit code to the top-level command so
// the process can exit with the same code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// Runner executes cmd-type applications.
type Runner struct {
	logger *logging.Logger
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

// NewRunner creates a Runner streaming subprocess output to the given
// writers.
func NewRunner(logger *logging.Logger, stdout, stderr io.Writer, stdin io.Reader) *Runner {
	return &Runner{logger: logger, stdout: stdout, stderr: stderr, stdin: stdin}
}

// Run executes one invocation of a cmd app.
func (r *Runner) Run(ctx context.Context, app *config.App, argv []string) error {
	if len(app.Command) == 0 {
		return apperr.Newf(apperr.ConfigMissing,
			"application %q has no command configured", app.Key)
	}

	var tail []string
	var err error
	switch app.Mode {
	case config.ModeCurated:
		tail, err = BuildArgs(app, argv)
		if err != nil {
			return err
		}
	case config.ModeProxy:
		tail = argv
	default:
		return apperr.Newf(apperr.ConfigMissing,
			"application %q: mode %s is not valid for a cmd app", app.Key, app.Mode)
	}

	full := append(append([]string{}, app.Command...), tail...)
	return r.exec(ctx, app, full)
}

// BuildArgs parses argv against the app's declared parameters and maps
// them onto the underlying command line. Declared order is preserved so
// positional parameters land where the command expects them. Param names
// may be written with or without leading dashes (`--env` and `env` are
// the same parameter).
func BuildArgs(app *config.App, argv []string) ([]string, error) {
	fs := pflag.NewFlagSet(app.Key, pflag.ContinueOnError)
	fs.Usage = func() {}
	values := make(map[string]*string, len(app.Params))
	for _, p := range app.Params {
		name := flagName(p.Name)
		values[name] = fs.String(name, "", p.Help)
	}

	if err := fs.Parse(argv); err != nil {
		return nil, fmt.Errorf("parsing arguments for %q: %w", app.Key, err)
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments %v; use --key value", rest)
	}

	var out []string
	for _, p := range app.Params {
		name := flagName(p.Name)
		if !fs.Changed(name) {
			if p.Required {
				return nil, fmt.Errorf("required flag --%s not set", name)
			}
			continue
		}
		if p.MapsTo != "" {
			out = append(out, p.MapsTo)
		}
		out = append(out, *values[name])
	}
	return out, nil
}

// flagName normalizes a declared parameter name to its bare flag form.
func flagName(name string) string {
	return strings.TrimLeft(name, "-")
}

func (r *Runner) exec(ctx context.Context, app *config.App, argv []string) error {
	var env []string
	keys := make([]string, 0, len(app.Env))
	for k := range app.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+app.Env[k])
	}
	return r.ExecRaw(ctx, argv[0], argv[1:], env)
}

// ExecRaw runs an explicit command line with extra KEY=VALUE environment
// entries layered over the process environment. Output streams through;
// the caller gets the subprocess exit code as an ExitError.
func (r *Runner) ExecRaw(ctx context.Context, name string, args, extraEnv []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Stdin = r.stdin
	cmd.Env = append(os.Environ(), extraEnv...)

	r.logger.InfoVerbose("Executing: %s %v", name, args)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal; report the conventional 128+SIGINT
			// code since the only signal we forward is interrupt.
			code = 130
		}
		return &ExitError{Code: code}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &ExitError{Code: 130}
	}
	return apperr.Wrap(apperr.TransportUnavailable, err,
		fmt.Sprintf("running %q", name))
}

