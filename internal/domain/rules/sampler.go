package rules

import (
	"math/rand/v2"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
)

const defaultForumDivisor = 3

type Sampler struct {
	rate         float64
	forumDivisor float64
	roll         func() float64
}

func NewSampler(rate float64, forumDivisor int) *Sampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	if forumDivisor <= 0 {
		forumDivisor = defaultForumDivisor
	}
	return &Sampler{
		rate:         rate,
		forumDivisor: float64(forumDivisor),
		roll:         rand.Float64,
	}
}

func (s *Sampler) Rate(kind enums.ChannelKind) float64 {
	if kind == enums.ChannelKindForum {
		return s.rate / s.forumDivisor
	}
	return s.rate
}

func (s *Sampler) Hit(kind enums.ChannelKind) bool {
	rate := s.Rate(kind)
	if rate <= 0 {
		return false
	}
	return s.roll() < rate
}
