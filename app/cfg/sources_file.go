package cfg

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmlb/ai-news-engine/app/feed"
)

const DefaultTechCrunchURL = "https://techcrunch.com/category/artificial-intelligence/"

var (
	DefaultSubreddits    = []string{"LocalLLaMA", "GPT3", "MachineLearning", "MistralAI", "OpenAI"}
	DefaultYouTubeTopics = []string{"large language models", "LLM", "AI tools", "LLM tutorials"}
	DefaultMediumTopics  = []string{"llm", "large-language-models"}

	DefaultMediumRelatedTags = []string{
		"data-science",
		"prompt-engineering",
		"mathematical-reasoning",
		"nlp",
		"time-series",
		"text-generation",
		"artificial-intelligence",
		"ai",
	}
)

// SourcesFile is the optional YAML document listing topics and keywords per
// source.
type SourcesFile struct {
	Sources []string `yaml:"sources"`

	Reddit struct {
		Subreddits []string `yaml:"subreddits"`
		Keywords   []string `yaml:"keywords"`
	} `yaml:"reddit"`

	YouTube struct {
		Topics   []string `yaml:"topics"`
		Channels []string `yaml:"channels"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"youtube"`

	TechCrunch struct {
		URL      string   `yaml:"url"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"techcrunch"`

	Medium struct {
		Topics      []string `yaml:"topics"`
		RelatedTags []string `yaml:"related_tags"`
		Keywords    []string `yaml:"keywords"`
	} `yaml:"medium"`
}

func LoadSourcesFile(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	slog.Debug("Sources file loaded",
		"path", path,
		"subreddits", len(file.Reddit.Subreddits),
		"youtube_topics", len(file.YouTube.Topics),
		"medium_topics", len(file.Medium.Topics))

	return &file, nil
}

func (f *SourcesFile) validate() error {
	for i, name := range f.Sources {
		if _, ok := feed.ParseSource(strings.ToLower(strings.TrimSpace(name))); !ok {
			return fmt.Errorf("unknown source at index %d: %s", i, name)
		}
	}

	for i, sub := range f.Reddit.Subreddits {
		if strings.ContainsAny(sub, "/ ") {
			return fmt.Errorf("invalid subreddit at index %d: %q (use the bare name)", i, sub)
		}
	}

	for i, tag := range f.Medium.Topics {
		if strings.ContainsAny(tag, "/ ") {
			return fmt.Errorf("invalid medium tag at index %d: %q (use the tag slug)", i, tag)
		}
	}

	if f.TechCrunch.URL != "" && !feed.IsAbsoluteURL(f.TechCrunch.URL) {
		return fmt.Errorf("techcrunch url must be an absolute http(s) URL")
	}

	return nil
}
