package pipeline

import (
	"fmt"
	"strings"
)

// Profile describes the reader across five cognitive domains, each rated
// 1 (significant challenges) to 5 (typical ability). Missing domains default
// to 5 and are skipped when building instructions.
type Profile struct {
	Attention    int `json:"attention"`
	Memory       int `json:"memory"`
	Visuospatial int `json:"visuospatial"`
	Language     int `json:"language"`
	Reasoning    int `json:"reasoning"`
}

// Normalize clamps every domain into [1,5], treating an unset (zero) value
// as typical ability.
func (p Profile) Normalize() Profile {
	return Profile{
		Attention:    clampLevel(p.Attention),
		Memory:       clampLevel(p.Memory),
		Visuospatial: clampLevel(p.Visuospatial),
		Language:     clampLevel(p.Language),
		Reasoning:    clampLevel(p.Reasoning),
	}
}

func clampLevel(v int) int {
	if v <= 0 {
		return 5
	}
	if v > 5 {
		return 5
	}
	return v
}

var domainGuidelines = []struct {
	name   string
	pick   func(Profile) int
	levels map[int]string
}{
	{
		name: "attention",
		pick: func(p Profile) int { return p.Attention },
		levels: map[int]string{
			1: "Use very short paragraphs of two to three sentences. Use bullet points extensively. Bold the one or two most important words per paragraph. Drop everything non-essential and add clear section headers.",
			2: "Use short paragraphs of three to four sentences with bullet points for lists. Bold important terms and remove tangential information.",
			3: "Keep paragraphs focused at four to five sentences. Highlight key points and break longer sections with subheadings.",
			4: "Keep paragraph length reasonable, use occasional emphasis, and make transitions clear.",
		},
	},
	{
		name: "memory",
		pick: func(p Profile) int { return p.Memory },
		levels: map[int]string{
			1: "Open with a summary of the main points. Repeat key information at the start and end of each section, keep terminology consistent, and add frequent mini-summaries.",
			2: "Start with a brief overview, repeat important information, and remind the reader of earlier concepts when referencing them.",
			3: "Include summaries at key points and connect new information to concepts already introduced.",
			4: "Recap key points occasionally and keep terminology for important concepts consistent.",
		},
	},
	{
		name: "visuospatial",
		pick: func(p Profile) int { return p.Visuospatial },
		levels: map[int]string{
			1: "Avoid spatial metaphors and descriptions of physical relationships. Replace visual descriptions with sequential step-by-step explanations and suggest numbered lists in place of diagrams.",
			2: "Simplify spatial descriptions and present information as linear sequences.",
			3: "Clarify spatial relationships and support visual descriptions with alternative explanations.",
			4: "Give adequate context for visual references and spatial relationships.",
		},
	},
	{
		name: "language",
		pick: func(p Profile) int { return p.Language },
		levels: map[int]string{
			1: "Use vocabulary around a 3rd-4th grade level and sentences under eight words where possible. No idioms or figurative language. Active voice only. Repeat important terms instead of using pronouns, and define anything above basic vocabulary.",
			2: "Use vocabulary around a 5th-6th grade level and sentences under twelve words where possible. Minimize idioms, prefer active voice, define specialized terms.",
			3: "Use vocabulary around an 8th grade level, keep sentences straightforward, and explain idioms and specialized terminology.",
			4: "Use clear, straightforward language and limit complex sentence structures.",
		},
	},
	{
		name: "reasoning",
		pick: func(p Profile) int { return p.Reasoning },
		levels: map[int]string{
			1: "Break complex ideas into explicit simple steps with a concrete example for every abstract concept. State causes and effects explicitly and avoid conditional statements where possible.",
			2: "Explain complex ideas step by step with examples for abstract concepts, making logical connections explicit.",
			3: "Break down multi-step processes, support abstract ideas with examples, and make key logical connections explicit.",
			4: "Keep the logical flow clear and make important causal relationships explicit.",
		},
	},
}

// BuildAdaptPrompt folds the profile-derived instruction set around one chunk
// of source text. Domains at level 5 contribute no instructions; if every
// domain is typical the prompt still asks for a clarity pass so output shape
// stays uniform.
func BuildAdaptPrompt(chunk string, p Profile) string {
	var b strings.Builder
	b.WriteString("You are an expert in adapting text for people with different cognitive abilities.\n")
	b.WriteString("Rewrite the following text so it is accessible for a reader with this profile, preserving ALL key information, facts, and concepts.\n\n")

	wrote := false
	for _, d := range domainGuidelines {
		level := d.pick(p)
		if level >= 5 {
			continue
		}
		fmt.Fprintf(&b, "%s (level %d/5): %s\n", strings.ToUpper(d.name), level, d.levels[level])
		wrote = true
	}
	if !wrote {
		b.WriteString("The reader has typical abilities in all domains; keep the structure but ensure clarity and precision.\n")
	}

	b.WriteString("\nORIGINAL TEXT:\n")
	b.WriteString(chunk)
	b.WriteString("\n\nADAPTED TEXT:")
	return b.String()
}

// BuildMapSummaryPrompt asks for a concise summary of one chunk.
func BuildMapSummaryPrompt(chunk string) string {
	return "You are an expert summarizer. Create a concise and comprehensive summary of the following text, capturing all the key information and main points.\n\nTEXT TO SUMMARIZE:\n" + chunk + "\n\nSUMMARY:"
}

// BuildReduceSummaryPrompt combines per-chunk summaries into one document
// summary.
func BuildReduceSummaryPrompt(partials []string) string {
	var b strings.Builder
	b.WriteString("You are an expert summarizer. Combine the following section summaries of a larger document into a single coherent summary. Avoid redundancy while preserving important details.\n\nSUMMARIES TO COMBINE:\n")
	for i, s := range partials {
		fmt.Fprintf(&b, "Summary %d:\n%s\n\n", i+1, s)
	}
	b.WriteString("FINAL SUMMARY:")
	return b.String()
}
