package services

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/hanko-field/storebot/internal/platform/textutil"
)

const (
	faqDescriptionLimit = 100
	defaultTopicEmoji   = "❓"
)

//go:embed faqdata/faq.yaml
var defaultFAQ []byte

var faqNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("storebot/faq"))

// Casers keep state between calls, so each one is built per use and never shared across
// chats.
func titleCase(s string) string {
	return cases.Title(language.Russian).String(s)
}

func foldCase(s string) string {
	return cases.Fold().String(s)
}

type faqFile struct {
	Topics []FAQEntry `yaml:"topics"`
}

type faqService struct {
	entries []FAQEntry
	index   map[string]int
}

// NewFAQService loads topics from path, or from the embedded defaults when path is empty.
func NewFAQService(path string) (FAQService, error) {
	data := defaultFAQ
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("faq service: read %s: %w", path, err)
		}
		data = raw
	}
	return ParseFAQ(data)
}

// ParseFAQ builds the service from YAML, keeping the file order of topics.
func ParseFAQ(data []byte) (FAQService, error) {
	var file faqFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("faq service: decode: %w", err)
	}
	if len(file.Topics) == 0 {
		return nil, errors.New("faq service: no topics defined")
	}
	svc := &faqService{index: make(map[string]int, len(file.Topics))}
	for _, entry := range file.Topics {
		entry.Topic = strings.TrimSpace(entry.Topic)
		entry.Answer = strings.TrimSpace(entry.Answer)
		if entry.Topic == "" || entry.Answer == "" {
			return nil, errors.New("faq service: topic and answer are required")
		}
		if strings.ContainsAny(entry.Topic, ":") {
			return nil, fmt.Errorf("faq service: topic %q must not contain ':'", entry.Topic)
		}
		if _, dup := svc.index[entry.Topic]; dup {
			return nil, fmt.Errorf("faq service: duplicate topic %q", entry.Topic)
		}
		if strings.TrimSpace(entry.Emoji) == "" {
			entry.Emoji = defaultTopicEmoji
		}
		svc.index[entry.Topic] = len(svc.entries)
		svc.entries = append(svc.entries, entry)
	}
	return svc, nil
}

func (s *faqService) Topics() []FAQEntry {
	out := make([]FAQEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *faqService) Lookup(topic string) (FAQEntry, bool) {
	i, ok := s.index[strings.TrimSpace(topic)]
	if !ok {
		return FAQEntry{}, false
	}
	return s.entries[i], true
}

// Search returns topics whose name starts with query, ignoring case. An empty query matches all.
func (s *faqService) Search(query string) []FAQEntry {
	query = foldCase(strings.TrimSpace(query))
	var out []FAQEntry
	for _, entry := range s.entries {
		if query != "" && !strings.HasPrefix(foldCase(entry.Topic), query) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Title capitalises the topic for buttons and headings.
func (e FAQEntry) Title() string {
	return titleCase(e.Topic)
}

// ResultID is a stable inline query result id for the topic.
func (e FAQEntry) ResultID() string {
	return uuid.NewSHA1(faqNamespace, []byte(e.Topic)).String()
}

// Description is the answer cut for inline query previews.
func (e FAQEntry) Description() string {
	return textutil.Truncate(e.Answer, faqDescriptionLimit, "...")
}
