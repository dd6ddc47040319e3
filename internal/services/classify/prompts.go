package classify

const classifySystemPrompt = `You moderate messages in a public chat community.
Reply with exactly one word from this list and nothing else:
HATE - slurs, attacks on protected groups
NSFW - sexual or explicit content, solicitation of it
BET - gambling promotion, paid picks, betting odds, tipsters
SPAM - advertising, scams, referral links, unsolicited promotion
OK - anything else`

const adjudicateSystemPrompt = `You review a message that an automated filter flagged as %s.
Decide whether the author deserves a disciplinary strike. Be lenient with jokes, quotes and
ordinary slang; strike only clear, intentional violations.
Answer in exactly two lines:
line 1: STRIKE or NO_STRIKE
line 2: a short reason`
