package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTriagePrompt(t *testing.T) {
	t.Run("with all fields", func(t *testing.T) {
		system, user := buildTriagePrompt("Walk-in freezer warm", "Reads 12C since this morning", []string{"Checked the breaker", "Door seal looks torn"})

		assert.Contains(t, system, `"urgency"`)
		assert.Contains(t, system, `"summary"`)
		assert.Contains(t, system, `"reason"`)
		assert.Contains(t, system, "from 1 to 5")

		assert.Contains(t, user, "Walk-in freezer warm")
		assert.Contains(t, user, "Reads 12C")
		assert.Contains(t, user, "- Door seal looks torn")
	})

	t.Run("with only title", func(t *testing.T) {
		_, user := buildTriagePrompt("Flickering light", "", nil)

		assert.Contains(t, user, "Flickering light")
		assert.NotContains(t, user, "Description:")
		assert.NotContains(t, user, "Comments:")
	})
}

func TestParseTriage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr string
	}{
		{name: "plain", text: `{"urgency":5,"summary":"Freezer failing","reason":"food safety"}`, want: 5},
		{name: "fenced", text: "```json\n{\"urgency\":2,\"summary\":\"s\",\"reason\":\"r\"}\n```", want: 2},
		{name: "out of range", text: `{"urgency":9}`, wantErr: "out of range"},
		{name: "missing urgency", text: `{"summary":"x"}`, wantErr: "out of range"},
		{name: "not json", text: "urgent!", wantErr: "parse LLM response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTriage(tt.text)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Urgency)
		})
	}
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`  {"a":1}  `))
	long := strings.Repeat("x", 10000)
	assert.Equal(t, long, stripFence(long))
}
