package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"arbor/internal/application/commands"
	"arbor/internal/domain"
)

// report prints a command result, or turns a failure into an error
func report(w io.Writer, verb string, res commands.CommandResult) error {
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Code, res.Error)
	}
	line := fmt.Sprintf("%s (seq %d)", verb, res.Seq)
	if res.NodeID != "" {
		line += " " + res.NodeID
	}
	fmt.Fprintln(w, line)

	olds := make([]string, 0, len(res.IDMap))
	for old := range res.IDMap {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	for _, old := range olds {
		fmt.Fprintf(w, "  %s -> %s\n", old, res.IDMap[old])
	}
	return nil
}

func printNode(w io.Writer, prefix string, n domain.TreeNode) {
	line := fmt.Sprintf("%s%s  %s  [%s]", prefix, n.ID, n.Name, n.NodeType)
	if n.HasChildren {
		line += fmt.Sprintf("  (%d below)", n.DescendantCount)
	}
	fmt.Fprintln(w, line)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dataArg reads a JSON flag value; "@file" reads the file instead
func dataArg(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	raw := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("data is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func policyFlag(strict bool) domain.NameConflictPolicy {
	if strict {
		return domain.NameConflictError
	}
	return domain.NameConflictAutoRename
}
