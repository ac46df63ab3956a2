// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// themedWeekday is the weekday of the larger themed mini puzzle.
const themedWeekday = time.Saturday

// DailyResult is one player's solve time for one puzzle date.
type DailyResult struct {
	Date     time.Time // calendar day, UTC midnight
	Username string    // player display name
	Time     int       // solve time in seconds, always > 0 once stored
}

// FeedEntry mirrors one record of the daily leaderboard feed.
// Score is nil when the player has not started the puzzle.
type FeedEntry struct {
	UserID int        `json:"userID"`
	Name   string     `json:"name"`
	Score  *FeedScore `json:"score,omitempty"`
}

// FeedScore holds the solve statistics of a feed record.
type FeedScore struct {
	SecondsSpentSolving int `json:"secondsSpentSolving"`
}

// LeaderboardEntry is a ranked row of one day's leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Time     int    `json:"time"`
}

// RatingState is a player's Gaussian skill belief.
type RatingState struct {
	Username string
	Mu       float64
	Sigma    float64
}

// AggregateRow is the persisted per-player summary of one window.
type AggregateRow struct {
	Username    string  `json:"username"`
	Mu          float64 `json:"mu"`
	Sigma       float64 `json:"sigma"`
	Elo         float64 `json:"elo"`
	AverageTime float64 `json:"average_time"`
	NumPlayed   int     `json:"num_played"`
	NumWins     int     `json:"num_wins"`
}

// TotalTime reconstructs the cumulative solve time of the row.
func (r AggregateRow) TotalTime() float64 {
	return r.AverageTime * float64(r.NumPlayed)
}

// Day truncates t to its calendar day in t's location and returns it as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// FormatDay renders a calendar day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// IsThemedDay reports whether date is the weekly themed puzzle day.
// Only display statistics exclude it; ratings always include every day.
func IsThemedDay(date time.Time) bool {
	return date.Weekday() == themedWeekday
}

// Matchup is one day both players of a head-to-head solved.
type Matchup struct {
	Date  time.Time
	TimeA int
	TimeB int
}
