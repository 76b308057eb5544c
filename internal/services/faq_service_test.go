package services

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestFAQServiceEmbeddedTopics(t *testing.T) {
	svc, err := NewFAQService("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topics := svc.Topics()
	if len(topics) != 6 {
		t.Fatalf("expected 6 topics, got %d", len(topics))
	}
	if topics[0].Topic != "доставка" || topics[0].Emoji != "🚚" {
		t.Fatalf("unexpected first topic %+v", topics[0])
	}
	if topics[0].Title() != "Доставка" {
		t.Fatalf("expected title-cased topic, got %q", topics[0].Title())
	}
	entry, ok := svc.Lookup("контакты")
	if !ok || !strings.Contains(entry.Answer, "support@shop.ru") {
		t.Fatalf("unexpected lookup %+v ok=%v", entry, ok)
	}
	if _, ok := svc.Lookup("missing"); ok {
		t.Fatalf("expected unknown topic to be absent")
	}
}

func TestFAQServiceSearchIsCaseFoldedPrefixMatch(t *testing.T) {
	svc, err := NewFAQService("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.Search("ДОСТ"); len(got) != 1 || got[0].Topic != "доставка" {
		t.Fatalf("unexpected search result %+v", got)
	}
	if got := svc.Search(""); len(got) != 6 {
		t.Fatalf("expected every topic for empty query, got %d", len(got))
	}
	if got := svc.Search("ставка"); len(got) != 0 {
		t.Fatalf("expected infix query to miss, got %+v", got)
	}
}

func TestFAQEntryDescriptionAndResultID(t *testing.T) {
	long := FAQEntry{Topic: "a", Answer: strings.Repeat("я", 120)}
	if got := long.Description(); got != strings.Repeat("я", 100)+"..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	short := FAQEntry{Topic: "b", Answer: "коротко"}
	if short.Description() != "коротко" {
		t.Fatalf("expected short answer unchanged")
	}
	if long.ResultID() == short.ResultID() || long.ResultID() != (FAQEntry{Topic: "a"}).ResultID() {
		t.Fatalf("expected stable distinct result ids")
	}
}

func TestFAQServiceLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.yaml")
	data := "topics:\n  - topic: часы\n    answer: круглосуточно\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	svc, err := NewFAQService(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topics := svc.Topics()
	if len(topics) != 1 || topics[0].Emoji != "❓" {
		t.Fatalf("expected default emoji, got %+v", topics)
	}
}

func TestParseFAQRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"empty":     "topics: []\n",
		"duplicate": "topics:\n  - {topic: a, answer: x}\n  - {topic: a, answer: y}\n",
		"colon":     "topics:\n  - {topic: 'a:b', answer: x}\n",
		"no answer": "topics:\n  - {topic: a}\n",
	}
	for name, data := range cases {
		if _, err := ParseFAQ([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestFAQServiceConcurrentSearch(t *testing.T) {
	svc, err := NewFAQService("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := svc.Search("ДОС"); len(got) != 1 || got[0].Topic != "доставка" {
					t.Errorf("unexpected search result %+v", got)
					return
				}
				for _, topic := range svc.Topics() {
					if topic.Title() == "" {
						t.Errorf("empty title for %q", topic.Topic)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
