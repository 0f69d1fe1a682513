package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packwright/core/internal/converge"
	"github.com/packwright/core/internal/registry"
	"github.com/packwright/core/internal/repository"
	"github.com/packwright/core/internal/state"
)

var registryCmd = &cobra.Command{
	Use:   "registry <name>",
	Short: "List the known releases of a package",
	Long: `Fetch and print every release a configured registry currently
knows about for a package, newest first, flagging retired releases.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegistry,
}

var registryRepo string

func init() {
	registryCmd.Flags().StringVar(&registryRepo, "repo", "", "repository to query (when empty, one of the configured repositories is used)")
}

func runRegistry(cmd *cobra.Command, args []string) error {
	name := args[0]

	st, err := state.New()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	repoName := registryRepo
	if repoName == "" {
		for n := range st.Repos {
			repoName = n
			break
		}
	}
	repo, ok := st.Repos[repoName]
	if !ok {
		return fmt.Errorf("no repository named %q is configured", repoName)
	}

	store := registry.New(st)
	if err := store.Load(st.Repos); err != nil {
		return fmt.Errorf("load registry cache: %w", err)
	}

	client := repository.NewClient(repo, st.HTTPClient)
	fetchers := converge.Fetchers(map[string]*repository.Client{repoName: client})
	ctx := context.Background()
	if err := store.Prefetch(ctx, fetchers[repoName], []registry.PrefetchRequest{{Repo: repo, Name: name}}); err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}

	releases, ok := store.Lookup(repoName, name)
	if !ok || len(releases) == 0 {
		return fmt.Errorf("no releases found for %s in %s", name, repoName)
	}

	versions := store.KnownVersions(repoName, name)
	byVersion := make(map[string]struct{ retired bool })
	for _, r := range releases {
		entry := byVersion[r.Version]
		entry.retired = r.Retired != nil
		byVersion[r.Version] = entry
	}

	for _, v := range versions {
		s := v.String()
		if byVersion[s].retired {
			cmd.Printf("  %s (retired)\n", s)
		} else {
			cmd.Printf("  %s\n", s)
		}
	}
	return nil
}
