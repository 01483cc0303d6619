// Package services holds the business rules on top of storage: entity guards,
// transactions, budget spending and recurring expense processing.
//
// This file implements one scheduling strategy per recurrence frequency.
// Occurrences are anchored on the template's start date; monthly and yearly
// schedules clamp the anchor day to the end of shorter months.

package services

import (
	"fmt"

	"fintrack/internal/core"
)

// DuenessChecker is the strategy interface for recurrence schedules.
type DuenessChecker interface {
	// Next returns the first occurrence strictly after last, anchored on start.
	Next(last, start core.Date) core.Date
}

type DailyChecker struct{}

func (DailyChecker) Next(last, _ core.Date) core.Date {
	return core.DateOf(last.AddDate(0, 0, 1))
}

type WeeklyChecker struct{}

func (WeeklyChecker) Next(last, _ core.Date) core.Date {
	return core.DateOf(last.AddDate(0, 0, 7))
}

// MonthlyChecker repeats on the start date's day of month. Jan 31 runs on
// Feb 29 (or 28) and then Mar 31 again.
type MonthlyChecker struct{}

func (MonthlyChecker) Next(last, start core.Date) core.Date {
	year, month := last.Year(), last.Month()+1
	if month > 12 {
		year, month = year+1, 1
	}
	return clampedDate(year, month, start.Day())
}

// YearlyChecker repeats on the start date's month and day. Feb 29 runs on
// Feb 28 in common years.
type YearlyChecker struct{}

func (YearlyChecker) Next(last, start core.Date) core.Date {
	return clampedDate(last.Year()+1, start.Month(), start.Day())
}

func clampedDate(year, month, day int) core.Date {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func daysIn(year, month int) int {
	return core.NewDate(year, month+1, 0).Day()
}

// duenessStrategies maps frequencies to their schedules.
var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the schedule for frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterDuenessChecker installs or replaces the schedule for a frequency.
func RegisterDuenessChecker(frequency core.Frequency, checker DuenessChecker) {
	duenessStrategies[frequency] = checker
}

// NextDueDate returns the next occurrence of re that has not been materialized.
// A template that never ran is first due on its start date. The zero Date
// means the template has no further occurrences.
func NextDueDate(re core.RecurringExpense) (core.Date, error) {
	var next core.Date
	if re.LastRunDate.IsZero() {
		next = re.StartDate
	} else {
		checker, err := GetDuenessChecker(re.Frequency)
		if err != nil {
			return core.Date{}, err
		}
		next = checker.Next(re.LastRunDate, re.StartDate)
	}
	if !re.EndDate.IsZero() && next.After(re.EndDate) {
		return core.Date{}, nil
	}
	return next, nil
}

// IsDue reports whether re has an occurrence on or before today.
func IsDue(re core.RecurringExpense, today core.Date) (bool, error) {
	if !re.IsActive {
		return false, nil
	}
	next, err := NextDueDate(re)
	if err != nil || next.IsZero() {
		return false, err
	}
	return !next.After(today), nil
}
