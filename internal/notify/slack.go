// Package notify posts fleet status-check results to Slack as a
// block-kit message (SPEC_FULL.md §4.L, ported from post_checks/slack.py).
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/doubleverify/ananke/internal/statuscheck"
)

// CheckResult is one poll's results across the fleet, keyed by target id.
type CheckResult map[string][]statuscheck.Diff

// Notifier posts post-change check results to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	client     *resty.Client
}

// New builds a Notifier posting to webhookURL.
func New(webhookURL string) *Notifier {
	return &Notifier{webhookURL: webhookURL, client: resty.New().SetTimeout(10 * time.Second)}
}

// PostRunCheck sends one block-kit message summarizing checkNumber (1
// indexed) of totalChecks. results holds every check run so far in
// order, so a target with no change since the prior check can be
// collapsed to a one-line "no change" note instead of repeating itself.
func (n *Notifier) PostRunCheck(results []CheckResult, checkNumber, totalChecks int) error {
	current := results[checkNumber-1]
	blocks := []map[string]any{}

	if checkNumber == 1 {
		blocks = append(blocks, section(":test_tube: *Ananke CLI post change report*\n"))
	}
	blocks = append(blocks, contextBlock(fmt.Sprintf("Check %d/%d", checkNumber, totalChecks)))

	var noDiffHosts []string
	for hostname, diffs := range current {
		if len(diffs) == 0 {
			noDiffHosts = append(noDiffHosts, hostname)
		}
	}

	for hostname, diffs := range current {
		if len(diffs) == 0 {
			continue
		}
		if checkNumber > 1 && sameDiffs(diffs, results[checkNumber-2][hostname]) {
			blocks = append(blocks, contextBlock(fmt.Sprintf(":router:\t_%s_\tNo change since previous check\t:arrow_up:", hostname)))
			continue
		}
		blocks = append(blocks, contextBlock(fmt.Sprintf(":router:\t_%s_", hostname)))
		lines := make([]string, 0, len(diffs))
		for _, d := range diffs {
			lines = append(lines, fmt.Sprintf("%s\t*Path:* %s *Diffs:* %s", diffEmoji(d), d.Path, diffText(d)))
		}
		blocks = append(blocks, contextBlock(strings.Join(lines, "\n")))
	}

	if len(noDiffHosts) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf(":white_check_mark:\t_%s_", strings.Join(noDiffHosts, ", "))},
				{"type": "mrkdwn", "text": "No operational diffs"},
			},
		})
	}

	if checkNumber == totalChecks {
		blocks = append(blocks, map[string]any{"type": "divider"})
	}

	resp, err := n.client.R().SetBody(map[string]any{"blocks": blocks}).Post(n.webhookURL)
	if err != nil {
		return fmt.Errorf("posting slack notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("posting slack notification: status %s", resp.Status())
	}
	return nil
}

func section(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func contextBlock(text string) map[string]any {
	return map[string]any{
		"type":     "context",
		"elements": []map[string]any{{"type": "mrkdwn", "text": text}},
	}
}

// diffEmoji flags an oper/session status flip: a transition to DOWN
// warns, a transition back to UP gets a thumbs-up, anything else is
// informational.
func diffEmoji(d statuscheck.Diff) string {
	text := d.Detail
	if strings.Contains(text, "oper-status") || strings.Contains(text, "session-state") {
		wentDown := strings.Contains(text, `"UP"`) && strings.Contains(text, `"DOWN"`) && strings.Index(text, `"UP"`) < strings.Index(text, `"DOWN"`)
		wentUp := strings.Contains(text, `"DOWN"`) && strings.Contains(text, `"UP"`) && strings.Index(text, `"DOWN"`) < strings.Index(text, `"UP"`)
		switch {
		case wentDown:
			return ":warning:"
		case wentUp:
			return ":up:"
		}
	}
	return ":information_source:"
}

func diffText(d statuscheck.Diff) string {
	if d.Kind == statuscheck.Changed {
		return d.Detail
	}
	return string(d.Kind)
}

func sameDiffs(a, b []statuscheck.Diff) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
