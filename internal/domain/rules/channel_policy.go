package rules

import (
	"regexp"
	"strings"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

// ChannelPolicy holds channel-scoped overrides evaluated before the prefilter.
type ChannelPolicy struct {
	allowed map[int64]struct{}
	strict  map[int64]*regexp.Regexp
}

func NewChannelPolicy(allowed []int64, strictFormats map[int64]string) (*ChannelPolicy, error) {
	p := &ChannelPolicy{
		allowed: make(map[int64]struct{}, len(allowed)),
		strict:  make(map[int64]*regexp.Regexp, len(strictFormats)),
	}
	for _, id := range allowed {
		p.allowed[id] = struct{}{}
	}
	for id, pattern := range strictFormats {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.strict[id] = re
	}
	return p, nil
}

// Override returns skip for trusted authors and allowed channels, and reject for a
// message that breaks its channel's required format.
func (p *ChannelPolicy) Override(ev model.ModerationEvent) (enums.Decision, bool) {
	if ev.AuthorIsAdmin {
		return enums.DecisionSkip, true
	}
	if p == nil {
		return "", false
	}
	if _, ok := p.allowed[ev.ChannelID]; ok {
		return enums.DecisionSkip, true
	}
	if re, ok := p.strict[ev.ChannelID]; ok {
		if !re.MatchString(strings.TrimSpace(ev.Text)) {
			return enums.DecisionReject, true
		}
	}
	return "", false
}

func (p *ChannelPolicy) Kind(channelID int64, fallback enums.ChannelKind) enums.ChannelKind {
	if p != nil {
		if _, ok := p.strict[channelID]; ok {
			return enums.ChannelKindStrict
		}
	}
	if fallback == "" {
		return enums.ChannelKindText
	}
	return fallback
}
