package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Quality dimensions scored 0-5 by ConversationQuality.
var QualityDimensions = []string{"clarity", "fluency", "coherence", "engagement", "vocabulary", "listening"}

const (
	notEnoughData    = "Not enough data to evaluate"
	notEnoughDataTip = "Not enough data to provide a tip"

	qualitySystem = "You are an expert conversation coach. You rate how well the user communicated during a voice call " +
		"and reply with a single JSON object and nothing else."
	qualityUser = "Rate the user's side of the conversation below. For each of clarity, fluency, coherence, engagement, " +
		"vocabulary and listening give an integer score from 0 to 5 and one sentence of feedback. " +
		"Add a short overall summary and one practical tip.\n" +
		`Reply as {"clarity":{"score":0,"feedback":""},...,"summary":"","tip":""}.` + "\n\nTranscript:\n"

	entitySystem = "You extract structured fields from call transcripts and reply with a single JSON object and nothing else."
	entityUser   = "Extract the fields listed below from the transcript. For every field reply with " +
		`{"text": the words used in the call, "value": the normalised value, "confidence": "high", "medium" or "low"}. ` +
		`When a field is not mentioned reply {"text":"NA","value":"Not Mentioned","confidence":"NA"}.` + "\n\nFields:\n"
)

// EntityField names a value to pull out of the transcript.
type EntityField struct {
	Name        string
	Description string
}

// ParseEntityFields reads "name:description;name2:description2". A field
// without a description uses its name.
func ParseEntityFields(s string) ([]EntityField, error) {
	var out []EntityField
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc, _ := strings.Cut(part, ":")
		name, desc = strings.TrimSpace(name), strings.TrimSpace(desc)
		if name == "" {
			return nil, fmt.Errorf("evaluation: entity field %q has no name", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("evaluation: duplicate entity field %q", name)
		}
		seen[name] = true
		if desc == "" {
			desc = name
		}
		out = append(out, EntityField{Name: name, Description: desc})
	}
	return out, nil
}

/* ===================== CONVERSATION QUALITY ===================== */

// ConversationQuality scores the user's communication. Transcripts without
// user speech, and failed completions, yield zero scores; the error is still
// returned in the latter case.
func (e *Evaluator) ConversationQuality(ctx context.Context, transcript string) (map[string]any, error) {
	if !hasUserSpeech(transcript) {
		return zeroQuality(), nil
	}
	content, err := e.completer.Complete(ctx, Prompt{
		System:      qualitySystem,
		User:        qualityUser + transcript,
		Temperature: 0.3,
	})
	if err != nil {
		return zeroQuality(), err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stripFence(content)), &out); err != nil {
		return zeroQuality(), fmt.Errorf("evaluation: quality reply: %w", err)
	}
	if out == nil {
		return zeroQuality(), ErrEmptyCompletion
	}
	return out, nil
}

func zeroQuality() map[string]any {
	out := make(map[string]any, len(QualityDimensions)+2)
	for _, d := range QualityDimensions {
		out[d] = map[string]any{"score": 0, "feedback": notEnoughData}
	}
	out["summary"] = notEnoughData
	out["tip"] = notEnoughDataTip
	return out
}

func hasUserSpeech(transcript string) bool {
	for _, line := range strings.Split(transcript, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(l, "user:") || strings.HasPrefix(l, "you:") {
			return true
		}
	}
	return false
}

/* ===================== ENTITY EXTRACTION ===================== */

// ExtractEntities pulls the configured fields out of the transcript. A failed
// completion produces {"error": ..., "result": nil}.
func (e *Evaluator) ExtractEntities(ctx context.Context, transcript string, fields []EntityField) (map[string]any, error) {
	var b strings.Builder
	b.WriteString(entityUser)
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)

	content, err := e.completer.Complete(ctx, Prompt{
		System:      entitySystem,
		User:        b.String(),
		Temperature: 0.2,
	})
	if err == nil {
		var out map[string]any
		if err = json.Unmarshal([]byte(stripFence(content)), &out); err == nil && out != nil {
			return out, nil
		}
		if err == nil {
			err = ErrEmptyCompletion
		}
		err = fmt.Errorf("evaluation: entities reply: %w", err)
	}
	return map[string]any{"error": err.Error(), "result": nil}, err
}

// stripFence removes a surrounding ```json ... ``` block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
