package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		check   func(t *testing.T, r *Result)
	}{
		{
			name:   "plain JSON",
			raw:    `{"logic_complete": true, "covered_concepts": ["linear_eq"], "feedback": "solid"}`,
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.True(t, r.LogicComplete)
				assert.Equal(t, []string{"linear_eq"}, r.CoveredConcepts)
				assert.Equal(t, "solid", r.Feedback)
			},
		},
		{
			name:   "fenced JSON with prose",
			raw:    "Here is my analysis:\n```json\n{\"logic_error\": true, \"error_type\": \"concept\"}\n```",
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.True(t, r.LogicError)
				assert.Equal(t, ErrorTypeConcept, r.ErrorType)
			},
		},
		{
			name:   "JSON embedded in prose",
			raw:    `The student struggles. {"logic_gap": true, "missing_concepts": ["factoring"]} Hope this helps.`,
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.True(t, r.LogicGap)
				assert.Equal(t, []string{"factoring"}, r.MissingConcepts)
			},
		},
		{
			name:   "null error type normalized",
			raw:    `{"logic_error": true, "error_type": "null"}`,
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.Empty(t, r.ErrorType)
			},
		},
		{
			name:   "error type cleared without logic_error",
			raw:    `{"logic_error": false, "error_type": "calculation"}`,
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.Empty(t, r.ErrorType)
			},
		},
		{
			name:   "non-JSON degrades conservatively",
			raw:    "I think the student is doing fine overall.",
			wantOK: false,
			check: func(t *testing.T, r *Result) {
				assert.False(t, r.LogicComplete)
				assert.False(t, r.LogicGap)
				assert.False(t, r.LogicError)
				assert.Empty(t, r.CoveredConcepts)
				assert.Equal(t, "I think the student is doing fine overall.", r.Feedback)
			},
		},
		{
			name:   "truncated JSON degrades conservatively",
			raw:    `{"logic_complete": true, "covered`,
			wantOK: false,
			check: func(t *testing.T, r *Result) {
				assert.False(t, r.LogicComplete)
			},
		},
		{
			name:   "braces inside strings do not confuse extraction",
			raw:    `{"feedback": "use {x} as a placeholder", "logic_gap": true}`,
			wantOK: true,
			check: func(t *testing.T, r *Result) {
				assert.True(t, r.LogicGap)
				assert.Equal(t, "use {x} as a placeholder", r.Feedback)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := Parse(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			tt.check(t, r)
		})
	}
}
