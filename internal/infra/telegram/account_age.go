package telegram

import "time"

type idAnchor struct {
	id   int64
	date time.Time
}

func anchorDate(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// Observed registration dates for sequential user ids.
var idAnchors = []idAnchor{
	{id: 1_000_000, date: anchorDate(2013, time.September)},
	{id: 10_000_000, date: anchorDate(2014, time.February)},
	{id: 100_000_000, date: anchorDate(2015, time.April)},
	{id: 200_000_000, date: anchorDate(2016, time.May)},
	{id: 400_000_000, date: anchorDate(2017, time.July)},
	{id: 700_000_000, date: anchorDate(2018, time.December)},
	{id: 1_000_000_000, date: anchorDate(2019, time.September)},
	{id: 1_500_000_000, date: anchorDate(2021, time.January)},
	{id: 2_000_000_000, date: anchorDate(2021, time.September)},
	{id: 5_000_000_000, date: anchorDate(2022, time.February)},
	{id: 6_000_000_000, date: anchorDate(2023, time.March)},
	{id: 7_000_000_000, date: anchorDate(2024, time.March)},
	{id: 8_000_000_000, date: anchorDate(2025, time.January)},
}

var estimateNow = time.Now

// EstimateAccountCreation interpolates a registration date from the user id. The Bot API
// does not expose account age, so this is an approximation good to a few months.
func EstimateAccountCreation(userID int64) time.Time {
	if userID <= idAnchors[0].id {
		return idAnchors[0].date
	}

	for i := 1; i < len(idAnchors); i++ {
		hi := idAnchors[i]
		if userID > hi.id {
			continue
		}
		return interpolate(idAnchors[i-1], hi, userID)
	}

	// Newer than the table: extend the last segment, never past now.
	last := len(idAnchors) - 1
	est := interpolate(idAnchors[last-1], idAnchors[last], userID)
	if now := estimateNow().UTC(); est.After(now) {
		return now
	}
	return est
}

func interpolate(lo, hi idAnchor, id int64) time.Time {
	span := hi.date.Sub(lo.date)
	frac := float64(id-lo.id) / float64(hi.id-lo.id)
	return lo.date.Add(time.Duration(frac * float64(span)))
}
