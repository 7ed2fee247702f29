package slack

import (
	"fmt"
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

func sampleActions() []models.PendingAction {
	return []models.PendingAction{
		{ID: 12, Agent: "inventory", ActionType: "restock_item", Reasoning: "Projected stockout in 3 days at current velocity."},
		{ID: 13, Agent: "marketing", ActionType: "pause_campaign", Reasoning: "Campaign CPA is 4x target."},
	}
}

func TestBuildApprovalRequestMessage(t *testing.T) {
	blocks := BuildApprovalRequestMessage("thread-abc", "why is ROAS down?", sampleActions(), "https://ops.example.com")

	require.Len(t, blocks, 4, "header + one block per action + button")

	header, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, header.Text.Text, ":hourglass_flowing_sand:")
	assert.Contains(t, header.Text.Text, "Approval required")
	assert.Contains(t, header.Text.Text, "2 proposed action(s)")
	assert.Contains(t, header.Text.Text, "why is ROAS down?")
	assert.Contains(t, header.Text.Text, "thread-abc")

	first := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, first.Text.Text, "#12")
	assert.Contains(t, first.Text.Text, "restock_item")
	assert.Contains(t, first.Text.Text, "inventory")
	assert.Contains(t, first.Text.Text, "Projected stockout")

	action := blocks[3].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "Review Actions", btn.Text.Text)
	assert.Equal(t, "https://ops.example.com/threads/thread-abc", btn.URL)
}

func TestBuildApprovalRequestMessage_NoDashboardSkipsButton(t *testing.T) {
	blocks := BuildApprovalRequestMessage("thread-abc", "q", sampleActions(), "")

	require.Len(t, blocks, 3)
	for _, b := range blocks {
		_, isAction := b.(*goslack.ActionBlock)
		assert.False(t, isAction)
	}
}

func TestBuildApprovalRequestMessage_CapsActionList(t *testing.T) {
	var actions []models.PendingAction
	for i := 0; i < 14; i++ {
		actions = append(actions, models.PendingAction{
			ID: int64(i + 1), Agent: "inventory", ActionType: "restock_item",
		})
	}

	blocks := BuildApprovalRequestMessage("thread-abc", "q", actions, "")

	// header + 10 listed + overflow summary
	require.Len(t, blocks, 12)
	overflow := blocks[11].(*goslack.SectionBlock)
	assert.Contains(t, overflow.Text.Text, "4 more")
}

func TestBuildRunResumedMessage(t *testing.T) {
	tests := []struct {
		name     string
		executed int
		failed   int
		want     []string
	}{
		{
			name:     "all succeeded",
			executed: 2,
			want:     []string{":white_check_mark:", "2 action(s) executed", "thread-abc"},
		},
		{
			name:     "partial failure",
			executed: 3,
			failed:   1,
			want:     []string{":warning:", "3 action(s) executed, 1 failed"},
		},
		{
			name: "nothing approved",
			want: []string{":no_entry_sign:", "no actions approved"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := BuildRunResumedMessage("thread-abc", tt.executed, tt.failed)
			require.Len(t, blocks, 1)
			section := blocks[0].(*goslack.SectionBlock)
			for _, want := range tt.want {
				assert.Contains(t, section.Text.Text, want)
			}
		})
	}
}

func TestTruncateForSlack(t *testing.T) {
	long := strings.Repeat("x", maxBlockTextLength+100)
	got := truncateForSlack(long)
	assert.LessOrEqual(t, len(got), maxBlockTextLength+100)
	assert.Contains(t, got, "truncated")

	short := "all good"
	assert.Equal(t, short, truncateForSlack(short))
}

func TestCollectMessageText_IncludesBlockText(t *testing.T) {
	msg := goslack.Message{}
	msg.Text = "plain"
	msg.Blocks.BlockSet = []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Thread:* `%s`", "thread-xyz"), false, false),
			nil, nil,
		),
	}

	text := collectMessageText(msg)
	assert.Contains(t, text, "plain")
	assert.Contains(t, text, "thread-xyz")
}
