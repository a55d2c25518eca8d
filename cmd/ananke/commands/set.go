package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/doubleverify/ananke/internal/connector/gnmi"
	"github.com/doubleverify/ananke/internal/deploy"
	"github.com/doubleverify/ananke/internal/model"
	"github.com/doubleverify/ananke/internal/notify"
	"github.com/doubleverify/ananke/internal/resolver"
	"github.com/doubleverify/ananke/internal/statuscheck"
)

// EnvSlackWebhook overrides settings.post-checks.slack-webhook, matching
// the original CLI's ANANKE_SLACK_WEBHOOK fallback.
const EnvSlackWebhook = "ANANKE_SLACK_WEBHOOK"

var priorityColor = map[int]*color.Color{
	model.PriorityError:   color.New(color.FgRed),
	model.PriorityWarning: color.New(color.FgYellow),
	model.PriorityInfo:    color.New(color.FgWhite),
}

type setFlags struct {
	sections           []string
	method             string
	debug              bool
	dryRun             bool
	postChecks         int
	postCheckInterval  int
	diffTolerance      int
	slackPostChecks    bool
}

func newSetCmd(root *Options) *cobra.Command {
	flags := &setFlags{}

	cmd := &cobra.Command{
		Use:   "set [targets...]",
		Short: "Push config to one or more targets",
		Long:  "Push config to devices. Specify a list of hosts and/or roles with an optional config section parameter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(flags, args)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.sections, "section", "s", nil, "config section to push")
	cmd.Flags().StringVarP(&flags.method, "method", "m", "", "method for write operations: replace or update")
	cmd.Flags().IntVarP(&flags.postChecks, "post-checks", "C", 0, "number of post checks to run")
	cmd.Flags().IntVarP(&flags.postCheckInterval, "post-check-interval", "I", 0, "interval in seconds between post checks, default 10")
	cmd.Flags().IntVarP(&flags.diffTolerance, "diff-tolerance", "T", 0, "variation tolerance percentage for numeric post check diffs, default 10")
	cmd.Flags().BoolVarP(&flags.slackPostChecks, "slack-post-checks", "S", false, "send post check results to slack")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "", false, "print JSON body and device response to the terminal")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "D", false, "render but do not push config")
	cmd.MarkFlagsMutuallyExclusive("debug", "dry-run")

	return cmd
}

func runSet(flags *setFlags, args []string) error {
	if flags.method != "" && flags.method != string(model.Replace) && flags.method != string(model.Update) {
		return fmt.Errorf("method must be %q or %q", model.Replace, model.Update)
	}
	if (flags.postCheckInterval != 0 || flags.diffTolerance != 0) && flags.postChecks == 0 {
		return fmt.Errorf("post check interval/tolerance specified without number of post checks")
	}

	tokens := targetTokens(args, flags.sections)
	var deployTags []string
	if flags.dryRun {
		deployTags = append(deployTags, model.TagDryRun)
	}

	fleet, err := BuildFleet(tokens, deployTags)
	if err != nil {
		return err
	}

	engine := &deploy.Engine{}
	results := engine.Deploy(context.Background(), fleet.Targets, fleet.Connectors, model.WriteMethod(flags.method))

	for _, target := range fleet.Targets {
		result, ok := results[target.ID]
		if !ok {
			continue
		}
		printResult(result, flags)
	}

	if flags.postChecks == 0 {
		return nil
	}
	return runPostChecks(fleet, flags)
}

func printResult(result *model.Response, flags *setFlags) {
	fmt.Println(colorLine("target", result.Source, color.New(color.FgCyan)))
	if flags.dryRun || flags.debug {
		body, _ := json.MarshalIndent(result.Body, "", "  ")
		fmt.Println(colorLine("config", string(body), color.New(color.FgWhite)))
	}
	if flags.debug {
		output, _ := json.MarshalIndent(result.Output, "", "  ")
		fmt.Println(colorLine("device response", string(output), color.New(color.FgMagenta)))
		for _, m := range result.Messages {
			fmt.Println(colorLine("message", m.Text, priorityColor[m.Priority]))
		}
		return
	}

	minPriority := result.MinPriority()
	message := "Config section(s) pushed to device"
	switch {
	case minPriority == model.PriorityError:
		message = "One or more config sections failed"
	case minPriority == model.PriorityWarning && len(result.Messages) > 0:
		message = result.Messages[0].Text
	}
	fmt.Println(colorLine("message", message, priorityColor[minPriority]))
}

func colorLine(prefix, message string, c *color.Color) string {
	return color.New(color.FgWhite, color.Faint).Sprintf("%s: ", prefix) + c.Sprint(message)
}

func runPostChecks(fleet *Fleet, flags *setFlags) error {
	interval := flags.postCheckInterval
	if interval == 0 {
		interval = 10
	}
	tolerance := flags.diffTolerance
	if tolerance == 0 {
		tolerance = 10
	}

	devices := make(map[string]statuscheck.Device)
	for id, conn := range fleet.Connectors {
		if d, ok := conn.(*gnmi.Device); ok {
			devices[id] = d
		}
	}

	webhook := fleet.Settings.PostChecks.SlackWebhook
	if env := os.Getenv(EnvSlackWebhook); env != "" {
		webhook = env
	}

	color.New(color.FgYellow).Println("Running post checks...")
	time.Sleep(time.Duration(interval) * time.Second)

	ctx := context.Background()
	checker, err := statuscheck.NewStatusCheck(ctx, devices, fleet.Settings.PostChecks.Paths)
	if err != nil {
		return fmt.Errorf("starting post checks: %w", err)
	}

	var history []notify.CheckResult
	var notifier *notify.Notifier
	if webhook != "" && flags.slackPostChecks {
		notifier = notify.New(webhook)
	}

	for checkNumber := 0; checkNumber < flags.postChecks; checkNumber++ {
		diffs := checker.Poll(ctx, tolerance)
		history = append(history, notify.CheckResult(diffs))

		color.New(color.FgCyan).Printf("Post check %d/%d\n", checkNumber+1, flags.postChecks)
		for host, hostDiffs := range diffs {
			color.New(color.FgMagenta).Printf("  %s: \n", host)
			if len(hostDiffs) == 0 {
				color.New(color.FgGreen).Println("    ✅ No diffs")
				continue
			}
			for _, d := range hostDiffs {
				color.New(color.FgWhite).Printf("    - %s\n", formatDiff(d))
			}
		}

		if notifier != nil {
			if err := notifier.PostRunCheck(history, checkNumber+1, flags.postChecks); err != nil {
				color.New(color.FgRed).Printf("slack notification failed: %v\n", err)
			}
		}

		if checkNumber < flags.postChecks-1 {
			time.Sleep(time.Duration(interval) * time.Second)
		}
	}
	return nil
}

func formatDiff(d statuscheck.Diff) string {
	if d.Detail == "" {
		return fmt.Sprintf("%s %s", d.Path, d.Kind)
	}
	return fmt.Sprintf("%s %s: %s", d.Path, d.Kind, d.Detail)
}

// targetTokens builds the resolver token map from positional target
// arguments and the requested config sections. A space-separated single
// argument (as produced by shell-expanded environment variables) is
// split the same way the original CLI accepted it.
func targetTokens(args []string, sections []string) map[string]resolver.SectionSet {
	if len(args) == 1 && strings.Contains(args[0], " ") {
		args = strings.Fields(args[0])
	}
	set := resolver.NewSectionSet(sections)
	if len(args) == 0 {
		return map[string]resolver.SectionSet{"": set}
	}
	tokens := make(map[string]resolver.SectionSet, len(args))
	for _, target := range args {
		tokens[target] = set
	}
	return tokens
}
