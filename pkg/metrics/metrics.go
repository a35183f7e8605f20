// Package metrics computes the per-session learning report. Every number
// derives deterministically from the recorded turn and hint logs, so a
// report can be recomputed later and must come out identical.
package metrics

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/session"
)

// silenceContent is the synthetic student input recorded on a silence
// trigger. It is excluded from speech metrics.
const silenceContent = "(silence)"

// reportNamespace derives report ids from session ids.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tutoring-metrics-report"))

// Aggregator computes MetricsReports.
type Aggregator struct {
	weights map[hint.Level]float64
}

// New creates an aggregator. Nil weights use the default hint weights.
func New(weights map[hint.Level]float64) *Aggregator {
	if weights == nil {
		weights = hint.DefaultWeights
	}
	return &Aggregator{weights: weights}
}

// Compute produces the session's report. focusSeconds comes from the
// external attention monitor; pass 0 when absent.
func (a *Aggregator) Compute(sess *session.Session, hints []hint.Record, focusSeconds float64) *session.MetricsReport {
	turns := sess.Turns()

	var words int
	var spokenSeconds, pauseSeconds float64
	studentTurns := 0

	for _, t := range turns {
		if t.Speaker != session.SpeakerStudent {
			continue
		}
		studentTurns++
		if t.Content == silenceContent {
			continue
		}

		if t.Audio != nil {
			words += t.Audio.WordCount
			spokenSeconds += t.Audio.DurationSeconds
			pauseSeconds += t.Audio.TotalPauseDuration
		} else {
			words += len(strings.Fields(t.Content))
		}
	}

	wpm := 0.0
	if spokenSeconds > 0 {
		wpm = float64(words) / (spokenSeconds / 60.0)
	}

	pauseRate := 0.0
	if spokenSeconds > 0 {
		pauseRate = clamp01(pauseSeconds / spokenSeconds)
	}

	return &session.MetricsReport{
		ID:                   uuid.NewSHA1(reportNamespace, []byte(sess.ID)).String(),
		SessionID:            sess.ID,
		WPM:                  wpm,
		PauseRate:            pauseRate,
		HintDependency:       hint.Dependency(hints, a.weights, studentTurns),
		ConceptCoverage:      sess.Coverage(),
		FocusDurationSeconds: focusSeconds,
		ComputedAt:           time.Now().UTC(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
