// Package aggregate turns per-frame classification results into the
// summary statistics and plain-language conclusions a report is built
// from. Two summarizers exist: ClassSummarizer averages over every
// classified person-instance, SubjectSummarizer over the frames in
// which one tracked subject was found.
package aggregate

import (
	"fmt"
	"time"

	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/models"
)

// Weights maps a statistic name to its contribution per percentage
// point of the attention score.
type Weights map[string]float64

// DefaultWeights returns the standard attention weighting: looking up
// dominates, writing helps, phone use costs.
func DefaultWeights() Weights {
	return Weights{
		string(behavior.LookingUp):  0.6,
		string(behavior.Writing):    0.3,
		string(behavior.UsingPhone): -0.3,
	}
}

// Score computes the weighted attention score from head-pose and
// hand-activity percentage distributions, clamped to [0, 100]. Head
// percentages are consulted first so the weight keys stay unambiguous.
func Score(head, hand map[string]float64, w Weights) float64 {
	score := 0.0
	for key, weight := range w {
		if pct, ok := head[key]; ok {
			score += weight * pct
			continue
		}
		score += weight * hand[key]
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BehaviorMinutes estimates how many minutes of the video each label
// accounts for, by scaling its share of sampled frames to the video
// duration.
func BehaviorMinutes(stats map[string]int, sampled int, duration time.Duration) map[string]float64 {
	if sampled <= 0 {
		return nil
	}
	minutes := make(map[string]float64, len(stats))
	for label, count := range stats {
		minutes[label] = float64(count) / float64(sampled) * duration.Minutes()
	}
	return minutes
}

// ClassSummarizer aggregates a class-wide run. Percentages are over
// classified person-instances, so a frame with ten students weighs ten
// times a frame with one.
type ClassSummarizer struct {
	Weights Weights
}

// Summarize builds the class summary from per-frame results.
func (s ClassSummarizer) Summarize(frames []models.ClassFrameResult) models.Summary {
	w := s.Weights
	if w == nil {
		w = DefaultWeights()
	}

	counts := newCounters()
	instances := 0
	for _, fr := range frames {
		instances += len(fr.Behaviors)
		for _, b := range fr.Behaviors {
			counts.add(b)
		}
	}

	sum := counts.summary(instances)
	sum.TotalFrames = len(frames)
	if len(frames) > 0 {
		sum.AvgStudentCount = float64(instances) / float64(len(frames))
	}
	sum.AttentionScore = Score(sum.HeadPercentages, sum.HandPercentages, w)
	sum.Conclusions = classConclusions(sum)
	return sum
}

// SubjectSummarizer aggregates a single-subject run. Percentages are
// over the frames in which the subject was found, so with the subject
// present and posed throughout, the head-pose buckets sum to 100.
type SubjectSummarizer struct {
	Weights Weights
	Name    string
}

// Summarize builds the subject summary from per-frame results.
func (s SubjectSummarizer) Summarize(frames []models.FrameResult) models.Summary {
	w := s.Weights
	if w == nil {
		w = DefaultWeights()
	}

	counts := newCounters()
	found := 0
	simSum := 0.0
	simCount := 0
	for _, fr := range frames {
		if !fr.StudentFound {
			continue
		}
		found++
		if fr.Behavior == nil {
			continue
		}
		counts.add(*fr.Behavior)
		if fr.Behavior.FaceSimilarity > 0 {
			simSum += fr.Behavior.FaceSimilarity
			simCount++
		}
	}

	sum := counts.summary(found)
	sum.TotalFrames = len(frames)
	switch {
	case simCount > 0:
		sum.RecognitionAccuracy = simSum / float64(simCount) * 100
	case len(frames) > 0:
		// No face similarities recorded (box-tracked run): fall back to
		// the share of frames the subject was located in.
		sum.RecognitionAccuracy = float64(found) / float64(len(frames)) * 100
	}
	sum.AttentionScore = Score(sum.HeadPercentages, sum.HandPercentages, w)
	sum.Conclusions = subjectConclusions(s.name(), sum, found)
	return sum
}

func (s SubjectSummarizer) name() string {
	if s.Name == "" {
		return "The student"
	}
	return s.Name
}

// counters accumulates label counts across results.
type counters struct {
	head      map[string]int
	hand      map[string]int
	composite map[string]int
	objects   map[string]int
}

func newCounters() *counters {
	return &counters{
		head:      make(map[string]int),
		hand:      make(map[string]int),
		composite: make(map[string]int),
		objects:   make(map[string]int),
	}
}

func (c *counters) add(b models.BehaviorResult) {
	c.head[string(b.HeadPose)]++
	c.hand[string(b.HandActivity)]++
	c.composite[string(b.Behavior)]++

	seen := make(map[string]bool, len(b.DesktopObjects))
	for _, obj := range b.DesktopObjects {
		// Count each object class once per instance.
		if name := string(obj.Class); !seen[name] {
			seen[name] = true
			c.objects[name]++
		}
	}
}

func (c *counters) summary(denominator int) models.Summary {
	return models.Summary{
		BehaviorStats:        c.composite,
		BehaviorPercentages:  percentages(c.composite, denominator),
		HeadPercentages:      percentages(c.head, denominator),
		HandPercentages:      percentages(c.hand, denominator),
		CompositePercentages: percentages(c.composite, denominator),
		ObjectPercentages:    percentages(c.objects, denominator),
	}
}

func percentages(counts map[string]int, denominator int) map[string]float64 {
	out := make(map[string]float64, len(counts))
	if denominator <= 0 {
		return out
	}
	for label, count := range counts {
		out[label] = float64(count) / float64(denominator) * 100
	}
	return out
}

func classConclusions(sum models.Summary) []string {
	var out []string

	switch {
	case sum.HeadPercentages[string(behavior.LookingUp)] > 60:
		out = append(out, "Students were highly attentive, with most of the class looking up at the front.")
	case sum.HeadPercentages[string(behavior.LookingDown)] > 40:
		out = append(out, "Attentiveness was low, with much of the class looking down for extended periods.")
	default:
		out = append(out, "Attentiveness was moderate, with students dividing time between the front and their desks.")
	}

	if sum.HandPercentages[string(behavior.Writing)] > 30 {
		out = append(out, "Students spent a significant share of time writing or taking notes.")
	}
	if sum.HandPercentages[string(behavior.UsingPhone)] > 20 {
		out = append(out, "Phone use was noticeably high across the class.")
	}

	if sum.ObjectPercentages["book"] > 50 {
		out = append(out, "Books were the dominant desk equipment during the session.")
	}
	if sum.ObjectPercentages["laptop"] > 30 {
		out = append(out, "Laptops were in use at a substantial share of desks.")
	}

	return out
}

func subjectConclusions(name string, sum models.Summary, found int) []string {
	if found == 0 {
		return []string{fmt.Sprintf("%s could not be found in the analyzed frames.", name)}
	}

	var out []string
	switch {
	case sum.AttentionScore >= 70:
		out = append(out, fmt.Sprintf("%s was highly engaged throughout the session (attention score %.0f).", name, sum.AttentionScore))
	case sum.AttentionScore >= 50:
		out = append(out, fmt.Sprintf("%s was moderately engaged (attention score %.0f).", name, sum.AttentionScore))
	default:
		out = append(out, fmt.Sprintf("%s showed low engagement (attention score %.0f).", name, sum.AttentionScore))
	}

	if sum.HeadPercentages[string(behavior.LookingUp)] > 60 {
		out = append(out, fmt.Sprintf("%s was looking toward the front for most of the session.", name))
	} else if sum.HeadPercentages[string(behavior.LookingUp)] < 30 {
		out = append(out, fmt.Sprintf("%s rarely looked toward the front.", name))
	}

	if w := sum.HandPercentages[string(behavior.Writing)]; w > 30 {
		out = append(out, fmt.Sprintf("%s spent much of the session writing.", name))
	} else if w > 20 {
		out = append(out, fmt.Sprintf("%s took notes intermittently.", name))
	}

	if sum.ObjectPercentages["laptop"] > 10 {
		out = append(out, fmt.Sprintf("%s worked with a laptop for part of the session.", name))
	}
	if sum.HandPercentages[string(behavior.UsingPhone)] > 10 {
		out = append(out, fmt.Sprintf("%s used a phone during the session.", name))
	}

	return out
}
