package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"arbor/internal/engine"
)

func newShellCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run commands against one engine, keeping undo history",
		Long: `Read commands from stdin, one per line, and run them against a single
engine so undo and redo reach back across commands. Words are split like a
shell does, so quote names with spaces. "exit" or end of input leaves.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		return s.shell(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	})
	return cmd
}

func (s *session) shell(ctx context.Context, c *engine.Client, in io.Reader, out, errw io.Writer) error {
	inner := &session{cfg: s.cfg, logger: s.logger, client: c}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for {
		fmt.Fprint(out, "arbor> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(errw, "error:", err)
			continue
		}
		if args[0] == "shell" {
			fmt.Fprintln(errw, "error: already in a shell")
			continue
		}

		root := NewRootCmd(inner)
		root.SilenceErrors = true
		root.SetArgs(args)
		root.SetIn(in)
		root.SetOut(out)
		root.SetErr(errw)
		if err := root.ExecuteContext(ctx); err != nil {
			fmt.Fprintln(errw, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// splitArgs breaks a line into words. Single quotes keep everything
// literal; inside double quotes and bare words a backslash escapes the next
// character.
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inWord := false
	var quote rune
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
