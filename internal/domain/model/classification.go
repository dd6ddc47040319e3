package model

import "github.com/ivankudzin/tgapp/moderator/internal/domain/enums"

type ClassificationResult struct {
	Category enums.Category `json:"category"`
	Flagged  bool           `json:"flagged"`
}

func NewClassificationResult(category enums.Category) ClassificationResult {
	if !category.Valid() {
		category = enums.CategoryOK
	}
	return ClassificationResult{
		Category: category,
		Flagged:  category.Flagged(),
	}
}

func OKResult() ClassificationResult {
	return NewClassificationResult(enums.CategoryOK)
}

type Verdict struct {
	Escalate bool
	Reason   string
}
