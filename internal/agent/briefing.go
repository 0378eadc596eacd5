package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"basegraph.app/boardroom/internal/model"
)

const defaultBriefingLimit = 4000

// BriefingEntry is one document in a briefing book. Entries tagged "*" are
// always included.
type BriefingEntry struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
	Body  string   `yaml:"body"`
}

// BriefingBook is a ContextProvider backed by a YAML file of documents.
// Entries are selected when a tag or title word appears in the topic or the
// user's message.
type BriefingBook struct {
	entries []BriefingEntry
	limit   int
}

func NewBriefingBook(entries []BriefingEntry, limit int) *BriefingBook {
	if limit <= 0 {
		limit = defaultBriefingLimit
	}
	return &BriefingBook{entries: entries, limit: limit}
}

// LoadBriefingBook reads a YAML file of the form:
//
//	entries:
//	  - title: Hiring freeze
//	    tags: [hiring, headcount]
//	    body: No new headcount until Q3.
func LoadBriefingBook(path string, limit int) (*BriefingBook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading briefing book: %w", err)
	}

	var doc struct {
		Entries []BriefingEntry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing briefing book %s: %w", path, err)
	}
	return NewBriefingBook(doc.Entries, limit), nil
}

func (b *BriefingBook) Context(_ context.Context, topic string, brief model.Brief) (string, error) {
	words := tokenize(topic + " " + brief.UserMessage)

	var sb strings.Builder
	for _, e := range b.entries {
		if !e.matches(words) {
			continue
		}
		section := fmt.Sprintf("## %s\n%s\n\n", e.Title, strings.TrimSpace(e.Body))
		if sb.Len()+len(section) > b.limit {
			break
		}
		sb.WriteString(section)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (e BriefingEntry) matches(words map[string]struct{}) bool {
	for _, tag := range e.Tags {
		if tag == "*" {
			return true
		}
		if _, ok := words[strings.ToLower(tag)]; ok {
			return true
		}
	}
	for w := range tokenize(e.Title) {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

// tokenize lowercases s and keeps words of four or more letters.
func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) >= 4 {
			out[f] = struct{}{}
		}
	}
	return out
}
