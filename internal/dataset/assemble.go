package dataset

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/brat"
)

// MissingAnnotationError reports a .txt file without its .ann partner.
type MissingAnnotationError struct {
	Base string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("no annotation file for %s.txt", e.Base)
}

// Options configures an assembly pass.
type Options struct {
	DatasetPath string
	// SkipMissing logs and skips unmatched .txt files instead of failing.
	SkipMissing bool
}

// Pair is one dataset pair, identified by the shared base name.
type Pair struct {
	Base    string
	TxtPath string
	AnnPath string
}

// DiscoverPairs lists the .txt/.ann pairs of a dataset directory in
// lexicographic base-name order, so repeated runs produce identical
// output. A .txt without a matching .ann is a MissingAnnotationError
// unless opts.SkipMissing is set.
func DiscoverPairs(opts Options) ([]Pair, error) {
	entries, err := os.ReadDir(opts.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}

	bases := make(map[string]bool)
	anns := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".txt"):
			bases[strings.TrimSuffix(name, ".txt")] = true
		case strings.HasSuffix(name, ".ann"):
			anns[strings.TrimSuffix(name, ".ann")] = true
		}
	}

	sorted := make([]string, 0, len(bases))
	for base := range bases {
		sorted = append(sorted, base)
	}
	sort.Strings(sorted)

	var pairs []Pair
	for _, base := range sorted {
		if !anns[base] {
			if opts.SkipMissing {
				log.Printf("Skipping %s.txt: no matching .ann file", base)
				continue
			}
			return nil, &MissingAnnotationError{Base: base}
		}
		pairs = append(pairs, Pair{
			Base:    base,
			TxtPath: filepath.Join(opts.DatasetPath, base+".txt"),
			AnnPath: filepath.Join(opts.DatasetPath, base+".ann"),
		})
	}

	return pairs, nil
}

// Assemble reads every pair of the dataset directory into a document
// collection. Parse failures abort the pass: downstream anonymisation
// assumes a complete table.
func Assemble(opts Options) ([]Document, error) {
	pairs, err := DiscoverPairs(opts)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(pairs))
	for _, pair := range pairs {
		doc, err := readPair(pair)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	log.Printf("Assembled %d documents from %s", len(docs), opts.DatasetPath)
	return docs, nil
}

func readPair(pair Pair) (Document, error) {
	text, err := os.ReadFile(pair.TxtPath)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", pair.TxtPath, err)
	}

	annFile, err := os.Open(pair.AnnPath)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", pair.AnnPath, err)
	}
	defer annFile.Close()

	spans, err := brat.Parse(filepath.Base(pair.AnnPath), annFile)
	if err != nil {
		return Document{}, err
	}

	return BuildDocument(pair.Base, string(text), spans), nil
}

// BuildDocument attaches parsed spans to the sentences of the raw text.
// A span belongs to the sentence whose offset range covers its start; a
// span of width one is the corpus convention for a sentence-level macro
// category rather than a labelled substring. Blank lines are dropped and
// do not advance the offset walk, matching the corpus annotation offsets.
func BuildDocument(name, text string, spans []brat.Span) Document {
	byStart := make(map[int]brat.Span, len(spans))
	for _, span := range spans {
		byStart[span.Start] = span
	}

	var sentences []Sentence
	position := 0
	index := 0
	isAsk := strings.Contains(name, "ask")

	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}

		sentence := Sentence{Index: index, Scope: "?"}
		if isAsk {
			if index%2 == 0 {
				sentence.Scope = "q"
			} else {
				sentence.Scope = "a"
			}
		}

		for range line {
			if span, ok := byStart[position]; ok {
				if span.End-span.Start == 1 {
					sentence.Macro = span.Label
				} else {
					sentence.addLabel(span.Label, span.Text)
				}
			}
			position++
		}
		position++ // the newline

		sentence.Text = strings.ReplaceAll(line, "¶ ", "")
		sentences = append(sentences, sentence)
		index++
	}

	sorted := make([]brat.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	return Document{Name: name, Sentences: sentences, Spans: sorted}
}
