// Package report turns an aggregated summary into a human-readable
// narrative with a local Ollama model. The narrative is optional
// garnish; every number in it comes from the summary, and runs work
// fine without a model available.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"

	"github.com/classlens/classlens/internal/models"
)

const defaultModel = "llama3.2:3b"

// NewAgent initializes the narrative agent against a local Ollama
// instance. The model may be empty to use the default.
func NewAgent(ctx context.Context, model string, logger *slog.Logger) (*agent.Agent, error) {
	// Quick reachability probe so a missing Ollama fails fast instead
	// of timing out on the first narrative.
	if _, err := exec.Command("curl", "-s", "http://localhost:11434/api/tags").Output(); err != nil {
		return nil, fmt.Errorf("ollama not reachable on localhost:11434: %w", err)
	}

	l := logr.FromSlogHandler(logger.Handler())
	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &l,
		BaseURL: "http://localhost",
		Port:    11434,
	})

	if model == "" {
		model = defaultModel
	}
	if err := provider.UseModel(ctx, &core.Model{ID: model}); err != nil {
		return nil, fmt.Errorf("selecting model %q: %w", model, err)
	}

	return agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithLogger(&l),
		bootstrap.WithSystemPrompt("You are an education analyst. Write short, factual reports about classroom engagement from the statistics given. Do not invent numbers."),
	)
}

// Narrative asks the agent to write a prose report from the summary.
func Narrative(ctx context.Context, a *agent.Agent, subject string, summary models.Summary) (string, error) {
	response, err := a.Run(ctx, agent.WithInput(prompt(subject, summary)))
	if err != nil {
		return "", err
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response messages received from model")
	}
	return response.Messages[len(response.Messages)-1].Content, nil
}

// prompt flattens the summary into a stable, readable block of
// statistics for the model.
func prompt(subject string, summary models.Summary) string {
	var b strings.Builder
	if subject == "" {
		b.WriteString("Write a one-paragraph report on whole-class engagement.\n\n")
	} else {
		fmt.Fprintf(&b, "Write a one-paragraph report on the engagement of %s.\n\n", subject)
	}

	fmt.Fprintf(&b, "Attention score: %.1f/100\n", summary.AttentionScore)
	if summary.RecognitionAccuracy > 0 {
		fmt.Fprintf(&b, "Recognition accuracy: %.1f%%\n", summary.RecognitionAccuracy)
	}
	if summary.AvgStudentCount > 0 {
		fmt.Fprintf(&b, "Average students visible: %.1f\n", summary.AvgStudentCount)
	}
	writeDistribution(&b, "Head pose", summary.HeadPercentages)
	writeDistribution(&b, "Hand activity", summary.HandPercentages)
	writeDistribution(&b, "Behavior", summary.CompositePercentages)
	writeDistribution(&b, "Desk objects", summary.ObjectPercentages)

	if len(summary.Conclusions) > 0 {
		b.WriteString("Observations:\n")
		for _, c := range summary.Conclusions {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

func writeDistribution(b *strings.Builder, title string, pcts map[string]float64) {
	if len(pcts) == 0 {
		return
	}
	labels := make([]string, 0, len(pcts))
	for label := range pcts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Fprintf(b, "%s:", title)
	for _, label := range labels {
		fmt.Fprintf(b, " %s %.1f%%", label, pcts[label])
	}
	b.WriteString("\n")
}
