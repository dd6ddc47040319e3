package rules

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
)

const (
	defaultAffirmationMaxLen = 24
	defaultLinkMinLength     = 40
)

var (
	DefaultAffirmations = []string{
		"bet", "bet bet", "alright bet", "aight bet", "ok bet", "okay bet", "bet bro",
		"bet fam", "bet thanks", "say less", "facts", "fr", "fr fr", "ong", "word", "yessir",
	}
	DefaultSolicitation = []string{
		"dm for picks", "dm me for picks", "dm for plays", "paid picks", "vip picks",
		"buy picks", "selling picks", "join my vip", "free picks in bio", "link in bio",
		"dm for content", "selling content", "check my bio", "cashapp me",
	}
	DefaultExplicit = []string{
		"porn", "nudes", "onlyfans", "nsfw", "xxx", "sex tape",
	}
)

var numericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?\d+`),
	regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s?(usd|dollars|bucks)\b`),
	regexp.MustCompile(`(^|\s)[+-]\d{3,4}\b`),
	regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s?u\b`),
	regexp.MustCompile(`(?i)\b\d+/\d+\s+odds\b`),
	regexp.MustCompile(`(?i)\b\d+(\.\d+)?x\s+(parlay|odds)\b`),
}

var linkPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|t\.me/\S+)`)

type PrefilterConfig struct {
	Affirmations      []string
	AffirmationMaxLen int
	Solicitation      []string
	Explicit          []string
	Severe            []string
	LinkMinLength     int
}

type Input struct {
	Raw        string
	Normalized string
}

// Rule is one row of the ordered decision table.
type Rule struct {
	Name     string
	Match    func(Input) bool
	Decision enums.Decision
}

type Prefilter struct {
	rules []Rule
}

func NewPrefilter(cfg PrefilterConfig) *Prefilter {
	if cfg.AffirmationMaxLen <= 0 {
		cfg.AffirmationMaxLen = defaultAffirmationMaxLen
	}
	if cfg.LinkMinLength <= 0 {
		cfg.LinkMinLength = defaultLinkMinLength
	}
	if cfg.Affirmations == nil {
		cfg.Affirmations = DefaultAffirmations
	}
	if cfg.Solicitation == nil {
		cfg.Solicitation = DefaultSolicitation
	}
	if cfg.Explicit == nil {
		cfg.Explicit = DefaultExplicit
	}

	affirmations := make(map[string]struct{}, len(cfg.Affirmations))
	for _, token := range cfg.Affirmations {
		affirmations[stripPunctuation(Normalize(token))] = struct{}{}
	}
	solicitation := NewWordList(cfg.Solicitation)
	explicit := NewWordList(append(append([]string{}, cfg.Explicit...), cfg.Severe...))
	maxLen := cfg.AffirmationMaxLen
	linkMin := cfg.LinkMinLength

	return &Prefilter{rules: []Rule{
		{
			Name:     "empty",
			Decision: enums.DecisionSkip,
			Match: func(in Input) bool {
				return in.Normalized == ""
			},
		},
		{
			Name:     "affirmation",
			Decision: enums.DecisionSkip,
			Match: func(in Input) bool {
				if utf8.RuneCountInString(in.Normalized) > maxLen {
					return false
				}
				_, ok := affirmations[stripPunctuation(in.Normalized)]
				return ok
			},
		},
		{
			Name:     "solicitation",
			Decision: enums.DecisionForceCheck,
			Match: func(in Input) bool {
				return solicitation.Match(in.Normalized)
			},
		},
		{
			Name:     "numeric",
			Decision: enums.DecisionForceCheck,
			Match: func(in Input) bool {
				for _, re := range numericPatterns {
					if re.MatchString(in.Raw) {
						return true
					}
				}
				return false
			},
		},
		{
			Name:     "explicit",
			Decision: enums.DecisionForceCheck,
			Match: func(in Input) bool {
				return explicit.Match(in.Normalized)
			},
		},
		{
			Name:     "link",
			Decision: enums.DecisionForceCheck,
			Match: func(in Input) bool {
				return utf8.RuneCountInString(in.Raw) > linkMin && linkPattern.MatchString(in.Raw)
			},
		},
	}}
}

// Decide walks the rule table top-to-bottom; the first match wins. No match means sample.
func (p *Prefilter) Decide(text string) enums.Decision {
	decision, _ := p.DecideWithRule(text)
	return decision
}

func (p *Prefilter) DecideWithRule(text string) (enums.Decision, string) {
	in := Input{
		Raw:        strings.TrimSpace(text),
		Normalized: Normalize(text),
	}
	for _, rule := range p.rules {
		if rule.Match(in) {
			return rule.Decision, rule.Name
		}
	}
	return enums.DecisionSample, "sample"
}

func (p *Prefilter) Rules() []string {
	names := make([]string, 0, len(p.rules)+1)
	for _, rule := range p.rules {
		names = append(names, rule.Name)
	}
	return append(names, "sample")
}
