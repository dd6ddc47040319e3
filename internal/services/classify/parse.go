package classify

import (
	"strings"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

const (
	tokenNoStrike = "NO_STRIKE"
	tokenStrike   = "STRIKE"
)

// ParseCategory maps free-form classifier output onto the closed category set.
// Unrecognized non-empty output becomes SPAM so a signal is never dropped.
func ParseCategory(raw string) enums.Category {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return enums.CategoryOK
	}
	for _, category := range enums.CategoryPriority {
		if strings.Contains(upper, string(category)) {
			return category
		}
	}
	return enums.CategorySpam
}

// ParseVerdict reads a two line verdict. NO_STRIKE is checked first since it contains STRIKE.
// The bool is false when the first line is ambiguous.
func ParseVerdict(raw string) (model.Verdict, bool) {
	lines := strings.SplitN(strings.TrimSpace(raw), "\n", 2)
	first := strings.ToUpper(strings.TrimSpace(lines[0]))
	reason := ""
	if len(lines) > 1 {
		reason = strings.TrimSpace(lines[1])
	}

	switch {
	case strings.Contains(first, tokenNoStrike):
		return model.Verdict{Escalate: false, Reason: reason}, true
	case strings.Contains(first, tokenStrike):
		return model.Verdict{Escalate: true, Reason: reason}, true
	default:
		return model.Verdict{Escalate: false, Reason: "ambiguous adjudication"}, false
	}
}
