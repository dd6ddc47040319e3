package enums

type Standing string

const (
	StandingClear        Standing = "clear"
	StandingQuarantined  Standing = "quarantined"
	StandingMuted        Standing = "muted"
	StandingMutedForever Standing = "muted_forever"
)
