package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/engine"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/tutor"
)

// ChatCmd runs one tutoring session as a terminal REPL. Silence is simulated
// with a timer: when the student types nothing for the configured threshold,
// a silence event is fed to the engine exactly as a voice front-end would.
type ChatCmd struct {
	Question string `help:"Problem statement to tutor." required:""`
	Solution string `help:"Standard solution (never shown until consolidation)."`
	Concepts string `help:"Comma-separated required concepts." placeholder:"C1,C2"`

	StudentID  string `name:"student-id" help:"Student identifier." default:"local"`
	QuestionID string `name:"question-id" help:"Question identifier." default:"adhoc"`

	NoSilence bool `name:"no-silence" help:"Disable the silence timer."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	svc, err := tutor.New(ctx, cfg, tutor.WithoutLoggerInit())
	if err != nil {
		return err
	}
	defer svc.Close()

	var concepts []string
	for _, concept := range strings.Split(c.Concepts, ",") {
		if concept = strings.TrimSpace(concept); concept != "" {
			concepts = append(concepts, concept)
		}
	}

	start, err := svc.Start(ctx, engine.StartRequest{
		QuestionID:       c.QuestionID,
		StudentID:        c.StudentID,
		QuestionText:     c.Question,
		StandardSolution: c.Solution,
		RequiredConcepts: concepts,
	})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	fmt.Printf("\ntutor> %s\n", start.InitialMessage)
	fmt.Println("(type /end to finish, /state to inspect)")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	silence := time.Duration(cfg.Tutoring.SilenceThresholdSeconds * float64(time.Second))

	for {
		fmt.Print("you> ")

		var (
			timer   *time.Timer
			timerCh <-chan time.Time
		)
		if !c.NoSilence && silence > 0 {
			timer = time.NewTimer(silence)
			timerCh = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			fmt.Println()
			return c.finish(svc, start.SessionID)

		case <-timerCh:
			if resp := svc.Silence(ctx, start.SessionID, silence.Seconds()); resp != nil {
				fmt.Printf("\ntutor> %s\n", resp.Text)
			}

		case line, ok := <-lines:
			stopTimer(timer)
			if !ok {
				return c.finish(svc, start.SessionID)
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/end" || line == "/quit":
				return c.finish(svc, start.SessionID)
			case line == "/state":
				if state, ok := svc.State(start.SessionID); ok {
					fmt.Printf("state: %s\n", state)
				}
				continue
			}

			resp := svc.Input(ctx, engine.StudentInput{
				SessionID: start.SessionID,
				Text:      line,
			})
			fmt.Printf("tutor> %s\n", resp.Text)
			if resp.Type == engine.ResponseConsolidate {
				fmt.Println("(the session reached consolidation; /end to see the summary)")
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (c *ChatCmd) finish(svc *tutor.Service, sessionID string) error {
	summary, err := svc.End(context.Background(), sessionID)
	if err != nil {
		return nil // already ended
	}

	fmt.Printf("\nSession summary\n")
	fmt.Printf("  duration:   %.0fs\n", summary.DurationSeconds)
	fmt.Printf("  turns:      %d\n", summary.TotalTurns)
	fmt.Printf("  coverage:   %.0f%%\n", summary.ConceptCoverage*100)
	if len(summary.ConceptsCovered) > 0 {
		fmt.Printf("  concepts:   %s\n", strings.Join(summary.ConceptsCovered, ", "))
	}
	fmt.Printf("  hints used: %d\n", len(summary.HintsUsed))
	return nil
}

// loadConfig loads the config file or falls back to the zero-config default:
// local Ollama, embedded vector store, in-memory sessions.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
