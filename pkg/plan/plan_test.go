package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []Step
		wantErr error
	}{
		{
			name: "fenced object",
			text: "Here is the plan:\n```json\n{\"steps\": [{\"id\": \"1\", \"title\": \"Create handler\"}, {\"id\": \"2\", \"title\": \"Register route\", \"dependencies\": [\"1\"]}]}\n```\nLet me know.",
			want: []Step{
				{ID: "1", Title: "Create handler", Status: StatusPending},
				{ID: "2", Title: "Register route", Status: StatusPending, Dependencies: []string{"1"}},
			},
		},
		{
			name: "bare array with numeric ids and aliases",
			text: `Sure. [{"id": 1, "name": "a", "role": "coder"}, {"id": 2, "name": "b", "depends_on": [1]}] done`,
			want: []Step{
				{ID: "1", Title: "a", Status: StatusPending, AssignedRole: "coder"},
				{ID: "2", Title: "b", Status: StatusPending, Dependencies: []string{"1"}},
			},
		},
		{
			name: "missing ids numbered by position",
			text: `{"plan": [{"title": "x"}, {"title": "y", "description": "why"}]}`,
			want: []Step{
				{ID: "1", Title: "x", Status: StatusPending},
				{ID: "2", Title: "y", Description: "why", Status: StatusPending},
			},
		},
		{
			name: "braces inside strings",
			text: `{"steps": [{"id": "s", "title": "write {\"ok\": true} to a.json"}]}`,
			want: []Step{{ID: "s", Title: `write {"ok": true} to a.json`, Status: StatusPending}},
		},
		{name: "no json", text: "I cannot help with that.", wantErr: ErrNoPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsMalformedPlans(t *testing.T) {
	for name, text := range map[string]string{
		"truncated":    `{"steps": [{"id": "1", "title": "a"}`,
		"duplicate id": `[{"id": "1", "title": "a"}, {"id": "1", "title": "b"}]`,
		"no title":     `[{"id": "1"}]`,
		"wrong shape":  `{"steps": "do it"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			assert.Error(t, err)
		})
	}
}
