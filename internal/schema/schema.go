// Package schema describes the command tree in a machine-readable form so
// wrappers and schedulers can discover commands without parsing help text.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Annotation keys set on commands.
const (
	// AnnotationAccounts marks commands that load the account store and
	// contact the API on behalf of every account.
	AnnotationAccounts = "mooncoin/accounts"
	// AnnotationInteractive marks commands that read from stdin.
	AnnotationInteractive = "mooncoin/interactive"
)

type Command struct {
	Path        string    `json:"path"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Accounts    bool      `json:"uses_accounts"`
	Interactive bool      `json:"interactive,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
	Global  bool   `json:"global,omitempty"`
}

// Describe returns the schema of the command at path below root. An empty
// path describes the whole tree, including the global flags.
func Describe(root *cobra.Command, path string) (Command, error) {
	cmd := root
	for _, part := range strings.Fields(path) {
		next := find(cmd, part)
		if next == nil {
			return Command{}, fmt.Errorf("unknown command %q", strings.TrimSpace(path))
		}
		cmd = next
	}
	return describe(cmd, cmd == root), nil
}

func find(parent *cobra.Command, name string) *cobra.Command {
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

func describe(cmd *cobra.Command, withGlobals bool) Command {
	out := Command{
		Path:        strings.TrimSpace(cmd.CommandPath()),
		Use:         cmd.Use,
		Short:       cmd.Short,
		Accounts:    cmd.Annotations[AnnotationAccounts] == "true",
		Interactive: cmd.Annotations[AnnotationInteractive] == "true",
		Flags:       flags(cmd.LocalNonPersistentFlags(), false),
	}
	if withGlobals {
		out.Flags = append(out.Flags, flags(cmd.PersistentFlags(), true)...)
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		out.Subcommands = append(out.Subcommands, describe(sub, false))
	}
	sort.Slice(out.Subcommands, func(i, j int) bool { return out.Subcommands[i].Path < out.Subcommands[j].Path })
	return out
}

func flags(fs *pflag.FlagSet, global bool) []Flag {
	var items []Flag
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		items = append(items, Flag{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Usage:   f.Usage,
			Default: f.DefValue,
			Global:  global,
		})
	})
	return items
}
