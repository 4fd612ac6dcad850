package response

import (
	"errors"
	"fmt"
	"strings"

	"policy-rag/internal/models"
)

// ErrUpstreamFailure is returned when a completion reply carries the provider
// error marker instead of an answer.
var ErrUpstreamFailure = errors.New("upstream completion failure")

type state int

const (
	awaitingReasoning state = iota
	inReasoning
	inConclusion
	inAdditionalInfo
	done
)

const trimSet = "\n "

// Parse decodes a model reply into its reasoning, conclusion and
// additional-information sections. Missing markers are not an error: the
// sections that were not reached keep their defaults.
func Parse(raw string) (models.ParsedAnswer, error) {
	if strings.Contains(raw, models.ErrorMarker) {
		return models.ParsedAnswer{}, fmt.Errorf("%w: %s", ErrUpstreamFailure, strings.Trim(raw, trimSet))
	}

	out := models.ParsedAnswer{
		Reasoning:      models.NotApplicable,
		Conclusion:     models.DefaultConclusion,
		AdditionalInfo: models.NotApplicable,
	}

	text := raw
	for st := awaitingReasoning; st != done; {
		switch st {
		case awaitingReasoning:
			st = done
			if _, after, ok := strings.Cut(text, models.ReasoningMarker); ok {
				text, st = after, inReasoning
			} else if _, after, ok := strings.Cut(text, models.ReasoningWord); ok {
				text, st = strings.TrimLeft(after, ": "), inReasoning
			}

		case inReasoning:
			before, after, ok := strings.Cut(text, models.ConclusionMarker)
			if !ok {
				out.Reasoning = strings.Trim(text, trimSet)
				st = done
				continue
			}
			out.Reasoning = strings.Trim(before, trimSet)
			text, st = after, inConclusion

		case inConclusion:
			before, after, ok := strings.Cut(text, models.AdditionalInfoMarker)
			out.Conclusion = strings.Trim(before, trimSet)
			if !ok {
				st = done
				continue
			}
			text, st = after, inAdditionalInfo

		case inAdditionalInfo:
			out.AdditionalInfo = strings.Trim(text, trimSet)
			if strings.Contains(out.AdditionalInfo, "None") {
				out.AdditionalInfo = models.NotApplicable
			}
			st = done
		}
	}
	return out, nil
}

// Normalize strips bold markup, turns underscores into hyphens and spells out
// the dollar sign.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, "$", "USD ")
}

// DetailedAnswer renders the labelled sections of p. The text ends with the
// "Further Reading:" heading; the caller appends the rendered sources.
func DetailedAnswer(p models.ParsedAnswer) string {
	return fmt.Sprintf("Reasoning:\n\n%s\n\n\nInformation required to provide a better answer:\n\n%s\n\n\nFurther Reading:\n",
		p.Reasoning, p.AdditionalInfo)
}

// Format returns the normalised conclusion and detailed answer for p.
func Format(p models.ParsedAnswer) (conclusion, detailed string) {
	return Normalize(p.Conclusion), Normalize(DetailedAnswer(p))
}
