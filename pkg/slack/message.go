package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/ecomops/opsloop/pkg/models"
)

const maxBlockTextLength = 2900

// maxListedActions caps how many proposals get their own line; anything past
// that is summarized so the message stays within Slack's block limits.
const maxListedActions = 10

func threadURL(threadID, dashboardURL string) string {
	return fmt.Sprintf("%s/threads/%s", dashboardURL, threadID)
}

// BuildApprovalRequestMessage creates Block Kit blocks announcing a run that
// suspended with proposed actions. The thread id appears in the header text
// so FindRunMessage can locate this message later for threading.
func BuildApprovalRequestMessage(threadID, question string, actions []models.PendingAction, dashboardURL string) []goslack.Block {
	header := fmt.Sprintf(":hourglass_flowing_sand: *Approval required* — %d proposed action(s) await review.\n*Question:* %s\n*Thread:* `%s`",
		len(actions), truncateForSlack(question), threadID)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	listed := actions
	if len(listed) > maxListedActions {
		listed = listed[:maxListedActions]
	}
	for _, action := range listed {
		line := fmt.Sprintf("*#%d* `%s` from *%s*", action.ID, action.ActionType, action.Agent)
		if action.Reasoning != "" {
			line += "\n_" + truncateForSlack(action.Reasoning) + "_"
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, line, false, false),
			nil, nil,
		))
	}
	if hidden := len(actions) - len(listed); hidden > 0 {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType,
				fmt.Sprintf("_... and %d more._", hidden), false, false),
			nil, nil,
		))
	}

	if dashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "Review Actions", false, false))
		btn.URL = threadURL(threadID, dashboardURL)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

// BuildRunResumedMessage creates Block Kit blocks reporting the outcome of a
// resumed run: how many approved actions executed and how many failed.
func BuildRunResumedMessage(threadID string, executed, failed int) []goslack.Block {
	var text string
	switch {
	case executed == 0 && failed == 0:
		text = fmt.Sprintf(":no_entry_sign: *Run resumed* — no actions approved.\n*Thread:* `%s`", threadID)
	case failed > 0:
		text = fmt.Sprintf(":warning: *Run resumed* — %d action(s) executed, %d failed.\n*Thread:* `%s`",
			executed, failed, threadID)
	default:
		text = fmt.Sprintf(":white_check_mark: *Run resumed* — %d action(s) executed.\n*Thread:* `%s`",
			executed, threadID)
	}

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — review in dashboard)_"
}
