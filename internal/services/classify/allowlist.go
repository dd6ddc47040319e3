package classify

import (
	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/rules"
)

// Allowlist downgrades HATE to OK for reclaimed or ambiguous terms unless a severe term is
// also present. Every consumer of a HATE result goes through Apply.
type Allowlist struct {
	allowed rules.WordList
	severe  rules.WordList
}

func NewAllowlist(allowed, severe []string) *Allowlist {
	return &Allowlist{
		allowed: rules.NewWordList(allowed),
		severe:  rules.NewWordList(severe),
	}
}

func (a *Allowlist) Apply(text string, result model.ClassificationResult) model.ClassificationResult {
	if a == nil || result.Category != enums.CategoryHate {
		return result
	}
	if a.allowed.Match(text) && !a.severe.Match(text) {
		return model.OKResult()
	}
	return result
}
