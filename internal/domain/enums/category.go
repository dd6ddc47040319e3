package enums

type Category string

const (
	CategoryOK   Category = "OK"
	CategoryHate Category = "HATE"
	CategoryNSFW Category = "NSFW"
	CategoryBet  Category = "BET"
	CategorySpam Category = "SPAM"
)

// CategoryPriority is the substring match order used when normalizing classifier output.
var CategoryPriority = []Category{
	CategoryHate,
	CategoryNSFW,
	CategoryBet,
	CategorySpam,
	CategoryOK,
}

func (c Category) Flagged() bool {
	return c != "" && c != CategoryOK
}

func (c Category) Valid() bool {
	switch c {
	case CategoryOK, CategoryHate, CategoryNSFW, CategoryBet, CategorySpam:
		return true
	default:
		return false
	}
}
