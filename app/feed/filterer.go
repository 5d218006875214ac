package feed

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/cases"
)

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonOffTopic    Reason = "off_topic"
	ReasonOffLanguage Reason = "off_language"
)

// Rule configures the content filters for one source.
type Rule struct {
	Keywords       []string // empty disables the relevance check
	RequireEnglish bool
}

// Filterer applies relevance and language checks. The time window is
// checked by the caller since it needs the run's cutoff.
type Filterer struct {
	detectOptions whatlanggo.Options
}

func NewFilterer() *Filterer {
	return &Filterer{
		detectOptions: whatlanggo.Options{
			Whitelist: map[whatlanggo.Lang]bool{
				whatlanggo.Eng: true,
				whatlanggo.Spa: true,
				whatlanggo.Fra: true,
				whatlanggo.Deu: true,
				whatlanggo.Por: true,
				whatlanggo.Ita: true,
				whatlanggo.Nld: true,
				whatlanggo.Pol: true,
				whatlanggo.Tur: true,
				whatlanggo.Ind: true,
				whatlanggo.Rus: true,
				whatlanggo.Ukr: true,
				whatlanggo.Cmn: true,
				whatlanggo.Jpn: true,
				whatlanggo.Kor: true,
				whatlanggo.Arb: true,
				whatlanggo.Hin: true,
			},
		},
	}
}

// Check returns the reason item should be dropped, or ReasonNone.
func (f *Filterer) Check(item Item, rule Rule) Reason {
	if len(rule.Keywords) > 0 && !f.matchesAny(item.Title+" "+item.Snippet, rule.Keywords) {
		return ReasonOffTopic
	}
	if rule.RequireEnglish && !f.IsEnglish(item.Title) {
		return ReasonOffLanguage
	}
	return ReasonNone
}

// IsEnglish classifies text with a trigram detector.
func (f *Filterer) IsEnglish(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	info := whatlanggo.DetectWithOptions(text, f.detectOptions)
	return info.Lang == whatlanggo.Eng
}

func (f *Filterer) matchesAny(value string, keywords []string) bool {
	folded := cases.Fold().String(value)
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if strings.Contains(folded, cases.Fold().String(keyword)) {
			return true
		}
	}
	return false
}
