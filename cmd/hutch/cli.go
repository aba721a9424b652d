package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mrowan/hutch/config"
	"github.com/mrowan/hutch/orchestrator"
	"github.com/mrowan/hutch/registry"
	"github.com/mrowan/hutch/ui"
	"github.com/mrowan/hutch/vcs"
)

type rootFlags struct {
	vcsOverride string
	dir         string
}

func newRootCommand(args []string) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "hutch",
		Short:         "Multi-worktree orchestration for git, mercurial, and jujutsu",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.vcsOverride, "vcs", "", "Force the VCS backend (git, hg, jj)")
	root.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Run as if started in this directory")

	root.AddCommand(
		newAddCommand(flags),
		newListCommand(flags),
		newTreeCommand(flags),
		newRemoveCommand(flags),
		newSwitchCommand(flags),
		newInfoCommand(flags),
		newPortsCommand(flags),
		newPruneCommand(flags),
	)

	if len(args) > 1 {
		root.SetArgs(args[1:])
	}
	return root
}

// openOrchestrator detects the repository around the working directory,
// loads its configuration, and builds the facade. The --vcs flag swaps the
// backend type but detection still locates the repository root.
func openOrchestrator(flags *rootFlags) (*orchestrator.Orchestrator, error) {
	detected, root, err := vcs.Detect(flags.dir)
	if err != nil {
		return nil, err
	}
	vcsType := detected
	if flags.vcsOverride != "" {
		vcsType, err = vcs.ParseType(flags.vcsOverride)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	backend, err := vcs.NewBackend(vcsType, root, vcs.Options{
		WorktreeDir: cfg.ResolveWorktreeDir(root),
	})
	if err != nil {
		return nil, err
	}
	return orchestrator.New(backend, cfg)
}

func newAddCommand(flags *rootFlags) *cobra.Command {
	var (
		fromRef  string
		noBranch bool
		services []string
		sparse   []string
	)
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a worktree with its own service ports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}

			req := orchestrator.CreateRequest{
				FromRef:          fromRef,
				CheckoutExisting: noBranch,
				Services:         services,
				SparsePaths:      sparse,
			}
			if len(args) == 1 {
				req.Name = args[0]
			} else {
				if err := runAddForm(&req); err != nil {
					return err
				}
			}

			result, err := o.Create(req)
			if err != nil {
				return err
			}
			fmt.Printf("Created worktree %s at %s\n", result.Worktree.Name, result.Worktree.Path)
			for _, service := range sortedKeys(result.Ports) {
				fmt.Printf("  %s: %d\n", service, result.Ports[service])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fromRef, "from", "", "Base ref to branch from")
	cmd.Flags().BoolVar(&noBranch, "no-branch", false, "Check out an existing branch instead of creating one")
	cmd.Flags().StringSliceVar(&services, "services", nil, "Services to allocate ports for (default: all configured)")
	cmd.Flags().StringSliceVar(&sparse, "sparse", nil, "Restrict the checkout to these paths when supported")
	return cmd
}

func newListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List worktrees",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			worktrees, err := o.List()
			if err != nil {
				return err
			}
			allocations, err := o.PortAllocations("")
			if err != nil {
				return err
			}
			portInfo := make(map[string][]string)
			for _, rec := range allocations {
				portInfo[rec.Worktree] = append(portInfo[rec.Worktree],
					fmt.Sprintf("%s:%d", rec.Service, rec.Port))
			}

			current := ""
			if wt, err := o.Backend().CurrentWorkspace(); err == nil {
				current = wt.Name
			}

			rows := make([]ui.WorktreeRow, 0, len(worktrees))
			for _, wt := range worktrees {
				rows = append(rows, ui.WorktreeRow{
					Name:     wt.Name,
					Branch:   wt.BranchOrChange,
					Path:     wt.Path,
					Current:  wt.Name == current,
					PortInfo: strings.Join(portInfo[wt.Name], " "),
				})
			}
			fmt.Print(ui.RenderWorktreeList(rows, viewStyles()))
			return nil
		},
	}
}

func newTreeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the worktree parent/child tree",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			forest, err := o.Tree()
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderTree(toTreeNodes(forest.Roots), viewStyles()))
			return nil
		},
	}
}

func newRemoveCommand(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a worktree and release its ports",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			name, err := o.Remove(args[0], force)
			if err != nil {
				return err
			}
			fmt.Printf("Removed worktree %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove despite uncommitted changes")
	return cmd
}

func newSwitchCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "switch [name]",
		Short: "Print the path of a worktree, picking interactively when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			worktrees, err := o.List()
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name, err = o.ResolveName(args[0])
				if err != nil {
					return err
				}
			} else {
				picker := newSwitchPicker(worktrees)
				final, err := tea.NewProgram(picker, tea.WithOutput(os.Stderr)).Run()
				if err != nil {
					return err
				}
				name = final.(switchModel).chosen
				if name == "" {
					return nil
				}
			}

			for _, wt := range worktrees {
				if wt.Name == name {
					fmt.Println(wt.Path)
					return nil
				}
			}
			return fmt.Errorf("worktree %q disappeared during selection", name)
		},
	}
}

func newInfoCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show a worktree's parent, children, and ports",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			info, err := o.Info(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:     %s\n", info.Worktree.Name)
			fmt.Printf("Path:     %s\n", info.Worktree.Path)
			fmt.Printf("Branch:   %s\n", info.Worktree.BranchOrChange)
			if info.Worktree.Parent != "" {
				fmt.Printf("Parent:   %s\n", info.Worktree.Parent)
			}
			if len(info.Children) > 0 {
				fmt.Printf("Children: %s\n", strings.Join(info.Children, ", "))
			}
			fmt.Printf("State:    %s\n", info.StateDir)
			for _, rec := range info.Ports {
				fmt.Printf("Port:     %s=%d\n", rec.Service, rec.Port)
			}
			return nil
		},
	}
}

func newPortsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect and manage port allocations",
	}

	list := &cobra.Command{
		Use:   "list [name]",
		Short: "List port allocations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			allocations, err := o.PortAllocations(query)
			if err != nil {
				return err
			}
			rows := make([]ui.PortRow, 0, len(allocations))
			for _, rec := range allocations {
				rows = append(rows, ui.PortRow{Worktree: rec.Worktree, Service: rec.Service, Port: rec.Port})
			}
			fmt.Print(ui.RenderPortTable(rows, viewStyles()))
			return nil
		},
	}

	release := &cobra.Command{
		Use:   "release <name>",
		Short: "Release every port held by a worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			name, err := o.ReleasePorts(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Released ports for %s\n", name)
			return nil
		},
	}

	reassign := &cobra.Command{
		Use:   "reassign <name> <service>",
		Short: "Move one service to a fresh port",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			name, port, err := o.ReassignPort(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Reassigned %s/%s to %d\n", name, args[1], port)
			return nil
		},
	}

	cmd.AddCommand(list, release, reassign)
	return cmd
}

func newPruneCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Clean up state and ports left by deleted worktrees",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			o, err := openOrchestrator(flags)
			if err != nil {
				return err
			}
			cleaned, err := o.Prune()
			if err != nil {
				return err
			}
			if len(cleaned) == 0 {
				fmt.Println("Nothing to prune.")
				return nil
			}
			for _, name := range cleaned {
				fmt.Printf("Pruned %s\n", name)
			}
			return nil
		},
	}
}

func toTreeNodes(roots []*registry.Node) []*ui.TreeNode {
	out := make([]*ui.TreeNode, 0, len(roots))
	for _, root := range roots {
		out = append(out, &ui.TreeNode{
			Label:    root.Name,
			Children: toTreeNodes(root.Children),
		})
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
