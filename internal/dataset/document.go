// Package dataset assembles paired .txt/.ann corpus files into one
// document collection and handles the tabular (CSV/XLSX) and structured
// (JSON) representations the rest of the pipeline consumes.
package dataset

import (
	"github.com/kanishk-verma-dotcom/amica-processing/internal/brat"
)

// LabelGroup collects the annotated substrings of one label within a
// sentence. A slice keeps first-seen order so CSV export and re-runs are
// deterministic.
type LabelGroup struct {
	Label string   `json:"label"`
	Texts []string `json:"texts"`
}

// Sentence is one line of the source text with the annotations that start
// inside it. Macro is the sentence-level category carried by a
// single-character marker span; Scope is q/a for question/answer corpora
// and "?" otherwise.
type Sentence struct {
	Index  int          `json:"index"`
	Text   string       `json:"sentence"`
	Labels []LabelGroup `json:"labels"`
	Macro  string       `json:"macro,omitempty"`
	Scope  string       `json:"scope"`
}

// Document is one .txt/.ann pair: the per-sentence view used for the
// table plus the raw spans the flat CSV form cannot carry.
type Document struct {
	Name      string      `json:"name"`
	Sentences []Sentence  `json:"sentences"`
	Spans     []brat.Span `json:"spans"`
}

// addLabel appends text under label, creating the group on first use.
func (s *Sentence) addLabel(label, text string) {
	for i := range s.Labels {
		if s.Labels[i].Label == label {
			s.Labels[i].Texts = append(s.Labels[i].Texts, text)
			return
		}
	}
	s.Labels = append(s.Labels, LabelGroup{Label: label, Texts: []string{text}})
}

// FirstLabel returns the first annotated label of the sentence, or
// "Negative" when the sentence carries none.
func (s *Sentence) FirstLabel() string {
	if len(s.Labels) == 0 {
		return "Negative"
	}
	return s.Labels[0].Label
}

// MacroLabel returns the sentence-level category, or "Negative" when the
// sentence has no marker span.
func (s *Sentence) MacroLabel() string {
	if s.Macro == "" {
		return "Negative"
	}
	return s.Macro
}
