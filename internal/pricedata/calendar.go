package pricedata

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// sessionSettled is when, in New York time, a day's bars are final.
const sessionSettledHour, sessionSettledMinute = 20, 5

// LatestFinishedTradingDay returns the most recent trading day whose session
// (extended hours included) has ended, according to the Alpaca trading
// calendar.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now := time.Now().In(et)

	days, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -10),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}
	return latestFinished(dates, now)
}

// latestFinished picks the last date in the ascending YYYY-MM-DD list that
// is before now's date, or equal to it once the session has settled.
func latestFinished(dates []string, now time.Time) (time.Time, error) {
	today := now.Format("2006-01-02")
	settled := time.Date(now.Year(), now.Month(), now.Day(),
		sessionSettledHour, sessionSettledMinute, 0, 0, now.Location())

	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] > today || (dates[i] == today && now.Before(settled)) {
			continue
		}
		d, err := time.Parse("2006-01-02", dates[i])
		if err != nil {
			continue
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("no finished trading day in calendar")
}
