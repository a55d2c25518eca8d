package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doubleverify/ananke/internal/diff"
	"github.com/doubleverify/ananke/internal/repo"
)

type configFlags struct {
	repoRoot     string
	branch       string
	authorName   string
	authorEmail  string
	message      string
	yes          bool
}

func newConfigCmd(root *Options) *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and commit versioned network configuration documents",
	}
	cmd.PersistentFlags().StringVar(&flags.repoRoot, "repo", os.Getenv(repo.EnvRepoTarget), "path to the local git checkout (env: "+repo.EnvRepoTarget+")")
	cmd.PersistentFlags().StringVar(&flags.branch, "branch", "", "branch to check out before reading or committing")

	cmd.AddCommand(newConfigGetCmd(flags), newConfigSetCmd(flags))
	return cmd
}

func newConfigGetCmd(flags *configFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print a network config document's current content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, _, err := loadNetworkConfig(flags, args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(map[string]any{nc.Key: nc.Content[nc.Key]})
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigSetCmd(flags *configFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <path> <value-file>",
		Short: "Replace a network config document's content and commit it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(flags, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&flags.authorName, "author-name", "", "commit author name")
	cmd.Flags().StringVar(&flags.authorEmail, "author-email", "", "commit author email")
	cmd.Flags().StringVar(&flags.message, "message", "", "commit message")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "commit without an interactive diff confirmation")
	return cmd
}

func runConfigSet(flags *configFlags, path, valueFile string) error {
	nc, _, err := loadNetworkConfig(flags, path)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(valueFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", valueFile, err)
	}
	var replacement any
	if err := yaml.Unmarshal(raw, &replacement); err != nil {
		return fmt.Errorf("parsing %s: %w", valueFile, err)
	}

	before, err := yaml.Marshal(map[string]any{nc.Key: nc.Content[nc.Key]})
	if err != nil {
		return err
	}
	nc.Content[nc.Key] = replacement
	after, err := yaml.Marshal(map[string]any{nc.Key: nc.Content[nc.Key]})
	if err != nil {
		return err
	}

	gen := diff.NewDiffGenerator(path+" (repo)", path+" (pending)", 3)
	unified, err := gen.GenerateUnifiedDiff(strings.Split(string(before), "\n"), strings.Split(string(after), "\n"))
	if err != nil {
		return fmt.Errorf("generating diff: %w", err)
	}
	color.New(color.FgWhite).Print(unified)

	if !flags.yes {
		color.New(color.FgYellow).Println("re-run with --yes to commit this change")
		return nil
	}

	var opts []repo.CommitOption
	if flags.authorName != "" || flags.authorEmail != "" {
		opts = append(opts, repo.WithAuthor(flags.authorName, flags.authorEmail))
	}
	if flags.message != "" {
		opts = append(opts, repo.WithMessage(flags.message))
	}
	if err := nc.CommitFile(opts...); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	color.New(color.FgGreen).Println("committed")
	return nil
}

func loadNetworkConfig(flags *configFlags, path string) (*repo.NetworkConfig, repo.Repo, error) {
	if flags.repoRoot == "" {
		return nil, nil, fmt.Errorf("%s must be set or --repo passed", repo.EnvRepoTarget)
	}
	r, err := repo.NewLocalRepo(flags.repoRoot, flags.branch)
	if err != nil {
		return nil, nil, err
	}
	nc, err := repo.Load(r, path)
	if err != nil {
		return nil, nil, err
	}
	return nc, r, nil
}
