package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packwright/core/internal/converge"
	"github.com/packwright/core/internal/fetch"
	"github.com/packwright/core/internal/registry"
	"github.com/packwright/core/internal/repository"
	"github.com/packwright/core/internal/resolve"
	"github.com/packwright/core/internal/state"
)

var (
	installDestDir  string
	installLockPath string
	installNoColor  bool
)

var installCmd = &cobra.Command{
	Use:   "install <name[@requirement]>...",
	Short: "Resolve, fetch, and lock a set of direct dependencies",
	Long: `Resolve the given packages (and their transitive dependencies)
against the configured registries, fetch every selected tarball into
the destination directory, and write the result to a lockfile.

Each argument names a direct dependency, e.g.:
  packwright install ecto@"~> 3.10" plug`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installDestDir, "dest", "deps", "directory to fetch packages into")
	installCmd.Flags().StringVar(&installLockPath, "lock", "mix.lock", "path to the lockfile")
	installCmd.Flags().BoolVar(&installNoColor, "no-color", false, "disable colored output")
}

func runInstall(cmd *cobra.Command, args []string) error {
	roots, err := parseDirectDeps(args)
	if err != nil {
		return err
	}

	st, err := state.New()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	store := registry.New(st)
	if err := store.Load(st.Repos); err != nil {
		return fmt.Errorf("load registry cache: %w", err)
	}

	clients := make(map[string]*repository.Client, len(st.Repos))
	for name, repo := range st.Repos {
		clients[name] = repository.NewClient(repo, st.HTTPClient)
	}

	ctx := cmd.Context()
	if err := converge.PrefetchAll(ctx, store, st.Repos, converge.Fetchers(clients), roots); err != nil {
		return fmt.Errorf("prefetch registries: %w", err)
	}

	pm := newProgressManager(cmd.OutOrStdout(), installNoColor)
	defer pm.Wait()

	deps := converge.Dependencies{
		Store:       store,
		Coordinator: fetch.New(st.HTTPConcurrency),
		Clients:     clients,
	}

	destDir, err := filepath.Abs(installDestDir)
	if err != nil {
		return err
	}

	resolution, err := converge.Converge(ctx, roots, deps, converge.Options{
		LockPath: installLockPath,
		DestDir:  destDir,
		Progress: pm.handleEvent,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Resolved and fetched %d packages into %s\n", len(resolution.Selections), destDir)
	return nil
}

// parseDirectDeps turns "name@requirement" (or bare "name") arguments
// into the root nodes Converge resolves against.
func parseDirectDeps(args []string) ([]*resolve.Node, error) {
	roots := make([]*resolve.Node, 0, len(args))
	for _, arg := range args {
		name, requirement, _ := strings.Cut(arg, "@")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid dependency spec %q", arg)
		}
		roots = append(roots, &resolve.Node{
			Name:        name,
			Requirement: strings.TrimSpace(requirement),
			FromPath:    "mix.exs",
		})
	}
	return roots, nil
}
