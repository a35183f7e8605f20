// Package prompt turns dialog state into LLM prompts. Every non-closing
// prompt carries the answer-prohibition preamble verbatim; hint prompts add
// a level-specific clause bounding how much may be revealed.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

// ProhibitionPreamble is the non-negotiable teaching rule. It appears
// verbatim in every prompt except the consolidation prompt.
const ProhibitionPreamble = "Do not reveal the answer, the complete solution, or key numeric results until the student themselves produces them. Guide with questions, not conclusions."

// statePostures map each dialog state to its teaching posture.
var statePostures = map[fsm.State]string{
	fsm.StateIdle:          "You are a warm math tutor greeting a student. Welcome them, restate the problem in your own words, and invite them to start thinking aloud.",
	fsm.StateListening:     "You are a Socratic math tutor listening to a student reason aloud. Acknowledge briefly and encourage them to keep going. Do not interrupt their train of thought with new material.",
	fsm.StateAnalyzing:     "You are a math tutor diagnosing a student's reasoning. Weigh what they said against the required concepts before responding.",
	fsm.StateProbing:       "You are a Socratic math tutor. The student's reasoning has a gap. Ask one focused question that leads them to notice the missing step themselves. Never fill the gap for them.",
	fsm.StateHinting:       "You are a math tutor giving a carefully bounded hint. Give exactly one hint at the permitted level, then hand the thinking back to the student.",
	fsm.StateRepair:        "You are a gentle math tutor. The student made an error. Without saying 'wrong', surface the contradiction so they can find and fix the mistake themselves.",
	fsm.StateConsolidating: "You are a math tutor wrapping up a solved problem. Summarize the solution path the student built, name the concepts they used, and reinforce what they did well.",
}

// hintClauses bound what each hint level may reveal.
var hintClauses = map[hint.Level]string{
	hint.LevelDirection: "Hint level 1: only point the general direction to think in. No formulas, no named steps, absolutely no numbers.",
	hint.LevelKeyStep:   "Hint level 2: you may name the key step or the relevant concept, but give no values and do not carry out the step.",
	hint.LevelSkeleton:  "Hint level 3: you may outline the skeleton of the solution as an ordered list of steps, but include no computed results anywhere.",
}

// categoryLabels title the reference block sections.
var categoryLabels = map[retrieval.Category]string{
	retrieval.CategoryQuestion:      "Related problem",
	retrieval.CategorySolution:      "Reference solution (for your eyes only)",
	retrieval.CategoryMisconception: "Known misconception",
	retrieval.CategoryConcept:       "Concept note",
	retrieval.CategoryHint:          "Suggested hint material",
}

// Context carries everything the composer may inject into a prompt.
type Context struct {
	// QuestionText is the problem being tutored.
	QuestionText string

	// StudentInput is the latest utterance.
	StudentInput string

	// History is the recent conversation, oldest first.
	History []session.Turn

	// Documents are the retrieved references, similarity-descending.
	Documents []retrieval.ScoredDocument

	// Concept is the concept currently in focus.
	Concept string

	// HintLevel applies only when composing for HINTING.
	HintLevel hint.Level

	// Coverage is the current concept-coverage ratio.
	Coverage float64

	// MissingConcepts from the latest analysis, if any.
	MissingConcepts []string
}

// Composer builds (system, user) prompt pairs.
type Composer struct {
	historyTurns int
	maxDocs      int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// New creates a composer with the given history and document bounds.
func New(historyTurns, maxDocs int) *Composer {
	if historyTurns <= 0 {
		historyTurns = 5
	}
	if maxDocs <= 0 {
		maxDocs = 5
	}
	return &Composer{
		historyTurns: historyTurns,
		maxDocs:      maxDocs,
	}
}

// Compose emits the prompt pair for the target state.
func (c *Composer) Compose(state fsm.State, pctx Context) (system, user string) {
	var sys strings.Builder

	posture, ok := statePostures[state]
	if !ok {
		posture = statePostures[fsm.StateListening]
	}
	sys.WriteString(posture)

	if state != fsm.StateConsolidating {
		sys.WriteString("\n\n")
		sys.WriteString(ProhibitionPreamble)
	}

	if state == fsm.StateHinting {
		if clause, ok := hintClauses[pctx.HintLevel]; ok {
			sys.WriteString("\n\n")
			sys.WriteString(clause)
		}
	}

	if pctx.Concept != "" {
		fmt.Fprintf(&sys, "\n\nConcept in focus: %s.", pctx.Concept)
	}
	if len(pctx.MissingConcepts) > 0 {
		fmt.Fprintf(&sys, "\nConcepts the student has not yet shown: %s.", strings.Join(pctx.MissingConcepts, ", "))
	}
	fmt.Fprintf(&sys, "\nConcept coverage so far: %.0f%%.", pctx.Coverage*100)

	if block := c.referenceBlock(pctx.Documents); block != "" {
		sys.WriteString("\n\n")
		sys.WriteString(block)
	}

	return sys.String(), c.userPrompt(pctx)
}

func (c *Composer) userPrompt(pctx Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Problem:\n%s\n", pctx.QuestionText)

	history := pctx.History
	if len(history) > c.historyTurns {
		history = history[len(history)-c.historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Content)
		}
	}

	fmt.Fprintf(&b, "\nStudent just said:\n%s\n", pctx.StudentInput)
	return b.String()
}

// referenceBlock formats retrieved documents, similarity-descending, as a
// labeled reference section.
func (c *Composer) referenceBlock(docs []retrieval.ScoredDocument) string {
	if len(docs) == 0 {
		return ""
	}

	sorted := make([]retrieval.ScoredDocument, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	if len(sorted) > c.maxDocs {
		sorted = sorted[:c.maxDocs]
	}

	var b strings.Builder
	b.WriteString("Reference material (never quote it verbatim to the student):")
	for _, doc := range sorted {
		label, ok := categoryLabels[doc.Category]
		if !ok {
			label = "Reference"
		}
		fmt.Fprintf(&b, "\n[%s] %s", label, doc.Content)
	}
	return b.String()
}

// AnalysisPrompt composes the diagnosis call. The response must be a JSON
// object; the feedback field must never contain the final answer.
func (c *Composer) AnalysisPrompt(studentInput, question, standardSolution string) (system, user string) {
	var sys strings.Builder

	sys.WriteString("You are a math-pedagogy analyst. Compare the student's reasoning against the problem")
	if standardSolution != "" {
		sys.WriteString(" and the standard solution")
	}
	sys.WriteString(`. Respond with ONLY a JSON object of this exact shape:

{
  "logic_complete": bool,
  "logic_gap": bool,
  "logic_error": bool,
  "error_type": "calculation" | "concept" | "careless" | null,
  "covered_concepts": [string],
  "missing_concepts": [string],
  "feedback": string,
  "continue_listening": bool
}

Rules:
- logic_error and logic_gap describe the student's reasoning so far.
- error_type is null unless logic_error is true.
- The feedback field must NEVER contain the final answer or any computed result.
- Output only the JSON object, no other text.`)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Problem:\n%s\n", question)
	if standardSolution != "" {
		fmt.Fprintf(&usr, "\nStandard solution (never repeat this to the student):\n%s\n", standardSolution)
	}
	fmt.Fprintf(&usr, "\nStudent's reasoning:\n%s\n", studentInput)

	return sys.String(), usr.String()
}

// TokenCount estimates the token footprint of text. The encoder loads
// lazily; if the encoding data is unavailable a bytes/4 heuristic is used.
func (c *Composer) TokenCount(text string) int {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})

	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// FitHistory trims the oldest turns until the composed user prompt fits
// within budget tokens. Zero budget means unlimited.
func (c *Composer) FitHistory(pctx Context, budget int) Context {
	if budget <= 0 {
		return pctx
	}

	for len(pctx.History) > 0 && c.TokenCount(c.userPrompt(pctx)) > budget {
		pctx.History = pctx.History[1:]
	}
	return pctx
}
