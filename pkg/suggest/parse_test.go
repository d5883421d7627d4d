/*
Copyright 2025 The insightd Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
		{
			name:    "json fence",
			content: "```json\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "plain fence",
			content: "```\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "surrounding prose",
			content: "Here you go:\n{\"a\":1}\nHope that helps!",
			want:    `{"a":1}`,
		},
		{
			name:    "no object",
			content: "I cannot help with that.",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.content)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDescription(t *testing.T) {
	valid := `{"title":"T","description":"D","rationale":"R","category":"energy","priority":"high"}`

	reply, err := parseDescription(valid)
	require.NoError(t, err)
	assert.Equal(t, "T", reply.Title)
	assert.Equal(t, "energy", reply.Category)

	tests := []struct {
		name    string
		content string
	}{
		{"missing title", `{"description":"D","category":"energy","priority":"high"}`},
		{"invalid category", `{"title":"T","description":"D","category":"lifestyle","priority":"high"}`},
		{"invalid priority", `{"title":"T","description":"D","category":"energy","priority":"urgent"}`},
		{"not json", `the model rambled`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDescription(tc.content)
			assert.Error(t, err)
		})
	}
}

func TestParseAutomation(t *testing.T) {
	validated := []string{"binary_sensor.hall_motion", "light.hall"}
	valid := `{"alias":"A","trigger":[{"platform":"state","entity_id":"binary_sensor.hall_motion"}],"action":[{"service":"light.turn_on","entity_id":"light.hall"}]}`

	spec, err := parseAutomation(valid, validated)
	require.NoError(t, err)
	assert.Equal(t, "A", spec.Alias)

	t.Run("rejects unvalidated entities", func(t *testing.T) {
		rogue := `{"alias":"A","trigger":[{"platform":"state","entity_id":"binary_sensor.hall_motion"}],"action":[{"service":"lock.unlock","entity_id":"lock.front_door"}]}`
		_, err := parseAutomation(rogue, validated)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock.front_door")
	})

	t.Run("rejects a spec without actions", func(t *testing.T) {
		_, err := parseAutomation(`{"alias":"A","trigger":[{"platform":"state"}]}`, validated)
		assert.Error(t, err)
	})

	t.Run("collects nested entity lists", func(t *testing.T) {
		nested := `{"alias":"A","trigger":[{"platform":"state","entity_id":["binary_sensor.hall_motion","light.hall"]}],"action":[{"service":"light.turn_on","target":{"entity_id":"light.hall"}}]}`
		_, err := parseAutomation(nested, validated)
		assert.NoError(t, err)
	})
}
