package enums

type ChannelKind string

const (
	ChannelKindText   ChannelKind = "text"
	ChannelKindForum  ChannelKind = "forum"
	ChannelKindStrict ChannelKind = "strict"
)
