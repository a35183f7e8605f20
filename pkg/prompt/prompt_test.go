package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

func TestProhibitionPreambleInAllNonConsolidatingStates(t *testing.T) {
	c := New(5, 5)

	states := []fsm.State{
		fsm.StateIdle, fsm.StateListening, fsm.StateAnalyzing,
		fsm.StateProbing, fsm.StateHinting, fsm.StateRepair,
	}
	for _, state := range states {
		system, _ := c.Compose(state, Context{QuestionText: "q"})
		assert.Contains(t, system, ProhibitionPreamble, "state %s must carry the preamble", state)
	}

	system, _ := c.Compose(fsm.StateConsolidating, Context{QuestionText: "q"})
	assert.NotContains(t, system, ProhibitionPreamble)
}

func TestHintLevelClauses(t *testing.T) {
	c := New(5, 5)

	system1, _ := c.Compose(fsm.StateHinting, Context{HintLevel: hint.LevelDirection})
	assert.Contains(t, system1, "Hint level 1")
	assert.NotContains(t, system1, "Hint level 2")

	system2, _ := c.Compose(fsm.StateHinting, Context{HintLevel: hint.LevelKeyStep})
	assert.Contains(t, system2, "Hint level 2")

	system3, _ := c.Compose(fsm.StateHinting, Context{HintLevel: hint.LevelSkeleton})
	assert.Contains(t, system3, "Hint level 3")

	// Non-hinting states never carry a hint clause.
	system, _ := c.Compose(fsm.StateProbing, Context{HintLevel: hint.LevelSkeleton})
	assert.NotContains(t, system, "Hint level")
}

func TestReferenceBlockOrderingAndLabels(t *testing.T) {
	c := New(5, 5)

	docs := []retrieval.ScoredDocument{
		{Document: retrieval.Document{Content: "low", Category: retrieval.CategoryConcept}, Score: 0.4},
		{Document: retrieval.Document{Content: "high", Category: retrieval.CategoryMisconception}, Score: 0.9},
	}
	system, _ := c.Compose(fsm.StateProbing, Context{Documents: docs})

	assert.Contains(t, system, "[Known misconception] high")
	assert.Contains(t, system, "[Concept note] low")
	assert.Less(t, strings.Index(system, "high"), strings.Index(system, "low"),
		"documents must appear similarity-descending")
}

func TestReferenceBlockTruncatesToMaxDocs(t *testing.T) {
	c := New(5, 2)

	docs := []retrieval.ScoredDocument{
		{Document: retrieval.Document{Content: "a", Category: retrieval.CategoryConcept}, Score: 0.9},
		{Document: retrieval.Document{Content: "b", Category: retrieval.CategoryConcept}, Score: 0.8},
		{Document: retrieval.Document{Content: "c", Category: retrieval.CategoryConcept}, Score: 0.7},
	}
	system, _ := c.Compose(fsm.StateProbing, Context{Documents: docs})
	assert.Contains(t, system, "a")
	assert.Contains(t, system, "b")
	assert.NotContains(t, system, "[Concept note] c")
}

func TestUserPromptHistoryBound(t *testing.T) {
	c := New(2, 5)

	history := []session.Turn{
		{Speaker: session.SpeakerStudent, Content: "oldest"},
		{Speaker: session.SpeakerTutor, Content: "middle"},
		{Speaker: session.SpeakerStudent, Content: "newest"},
	}
	_, user := c.Compose(fsm.StateListening, Context{
		QuestionText: "q", StudentInput: "now", History: history,
	})

	assert.NotContains(t, user, "oldest")
	assert.Contains(t, user, "middle")
	assert.Contains(t, user, "newest")
	assert.Contains(t, user, "now")
}

func TestAnalysisPromptDemandsJSONWithoutAnswer(t *testing.T) {
	c := New(5, 5)

	system, user := c.AnalysisPrompt("I got x=2", "Solve x^2=4", "x = ±2")
	assert.Contains(t, system, "logic_complete")
	assert.Contains(t, system, "logic_error")
	assert.Contains(t, system, "NEVER contain the final answer")
	assert.Contains(t, user, "Solve x^2=4")
	assert.Contains(t, user, "x = ±2")
	assert.Contains(t, user, "I got x=2")
}

func TestTokenCountAndFitHistory(t *testing.T) {
	c := New(10, 5)

	count := c.TokenCount("a short sentence about math")
	assert.Greater(t, count, 0)

	history := make([]session.Turn, 8)
	for i := range history {
		history[i] = session.Turn{
			Speaker: session.SpeakerStudent,
			Content: strings.Repeat("reasoning step with several words ", 20),
		}
	}
	pctx := Context{QuestionText: "q", StudentInput: "in", History: history}

	fitted := c.FitHistory(pctx, 200)
	assert.Less(t, len(fitted.History), len(history))
	assert.LessOrEqual(t, c.TokenCount(c.userPrompt(fitted)), 200)

	// Zero budget leaves the context untouched.
	unfitted := c.FitHistory(pctx, 0)
	assert.Len(t, unfitted.History, len(history))
}
