package mcpapp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/schemacache"
)

// ErrInterrupted reports that the user cancelled the interactive session.
// The caller maps it to the conventional interrupt exit code.
var ErrInterrupted = errors.New("terminated by user")

// LineReader yields one line of interactive input per call. io.EOF ends
// the session cleanly; ErrInterrupted ends it as a user cancellation.
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

// readlineSource is the production LineReader: prompt, history, and tab
// completion over the session's tool names.
type readlineSource struct {
	rl *readline.Instance
}

// NewReadlineSource creates the interactive terminal line source.
func NewReadlineSource(appName string, tools []schemacache.ToolDef) (LineReader, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(tools)+1)
	for _, t := range tools {
		items = append(items, readline.PcItem(t.Name))
	}
	items = append(items, readline.PcItem("exit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("creating readline instance: %w", err)
	}
	return &readlineSource{rl: rl}, nil
}

func (r *readlineSource) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", ErrInterrupted
	}
	return line, err
}

func (r *readlineSource) Close() error { return r.rl.Close() }

// scannerSource reads lines from any reader. Used when stdin is not a
// terminal and by tests.
type scannerSource struct {
	scanner *bufio.Scanner
}

// NewScannerSource creates a LineReader over r.
func NewScannerSource(r io.Reader) LineReader {
	return &scannerSource{scanner: bufio.NewScanner(r)}
}

func (s *scannerSource) ReadLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerSource) Close() error { return nil }

// InteractiveLoop keeps one session open across multiple tool
// invocations read line by line.
type InteractiveLoop struct {
	session Session
	tools   []schemacache.ToolDef
	logger  *logging.Logger
	out     io.Writer
}

// NewInteractiveLoop creates a loop over an already-open session and its
// catalog, fetched once at entry.
func NewInteractiveLoop(session Session, tools []schemacache.ToolDef, logger *logging.Logger, out io.Writer) *InteractiveLoop {
	return &InteractiveLoop{session: session, tools: tools, logger: logger, out: out}
}

// Run reads lines until end-of-input, an exit command, or an interrupt.
// A failed dispatch is reported and the loop continues; it never tears
// down the session.
func (l *InteractiveLoop) Run(ctx context.Context, lines LineReader) error {
	l.logger.Info("Interactive session started. Type a tool name with --flag value pairs, or 'exit' to quit.")
	l.listTools()

	for {
		select {
		case <-ctx.Done():
			return ErrInterrupted
		default:
		}

		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
			return ErrInterrupted
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			return nil
		}

		if err := l.dispatch(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return ErrInterrupted
			}
			l.logger.Error("%v", err)
		}
	}
}

// dispatch parses one line into a tool call and runs it on the open
// session.
func (l *InteractiveLoop) dispatch(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	toolName, tokens := fields[0], fields[1:]

	tool, err := findTool(l.tools, toolName)
	if err != nil {
		return err
	}

	args, err := ParseToolFlags(tool, tokens)
	if err != nil {
		return fmt.Errorf("%s: %w", toolName, err)
	}

	result, err := l.session.CallTool(ctx, toolName, args)
	if err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("tool %s reported an error: %s", toolName, result.Text)
	}

	fmt.Fprintln(l.out, result.Render())
	return nil
}

func (l *InteractiveLoop) listTools() {
	l.logger.Info("Available tools (%d):", len(l.tools))
	for _, t := range l.tools {
		l.logger.Info("  %-30s %s", t.Name, t.Description)
	}
}
