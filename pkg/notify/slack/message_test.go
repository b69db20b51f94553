package slack

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lk2023060901/brokerwatch/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBuild(t *testing.T) {
	msg := NewMessage("2 alerts on rabbit-eu-1").
		AddHeader("rabbit-eu-1").
		AddSection(LevelEmoji(notify.LevelCritical) + " *memory* on rabbit@node-1").
		AddFields(Field("Current", "96.0%"), Field("Threshold", "95.0%")).
		AddDivider().
		AddContext(Mrkdwn("workspace acme"))

	body, err := msg.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "2 alerts on rabbit-eu-1", decoded["text"])

	blocks := decoded["blocks"].([]any)
	require.Len(t, blocks, 5)
	assert.Equal(t, "header", blocks[0].(map[string]any)["type"])
	fields := blocks[2].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "*Current*\n96.0%", fields[0].(map[string]any)["text"])
	assert.NotContains(t, blocks[3].(map[string]any), "text")
}

func TestAddFieldsSplitsLargeSets(t *testing.T) {
	fields := make([]*TextObject, 0, 23)
	for i := 0; i < 23; i++ {
		fields = append(fields, Field(fmt.Sprintf("f%d", i), "v"))
	}
	msg := NewMessage("x").AddFields(fields...)
	require.Len(t, msg.Blocks, 3)
	assert.Len(t, msg.Blocks[0].Fields, 10)
	assert.Len(t, msg.Blocks[2].Fields, 3)
}

func TestLevelEmoji(t *testing.T) {
	assert.Equal(t, ":red_circle:", LevelEmoji(notify.LevelCritical))
	assert.Equal(t, ":large_yellow_circle:", LevelEmoji(notify.LevelWarning))
	assert.Equal(t, ":large_blue_circle:", LevelEmoji(notify.LevelInfo))
	assert.Equal(t, ":white_circle:", LevelEmoji("other"))
}
