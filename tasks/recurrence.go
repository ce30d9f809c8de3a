package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	dateLayout        = "20060102"
	floatingLayout    = "20060102T150405"
	utcDateTimeLayout = "20060102T150405Z"
)

// ValidateRRule checks an RRULE value. An empty rule is valid.
func ValidateRRule(rule string) error {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	if rule == "" {
		return nil
	}
	if _, err := rrule.StrToROption(rule); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRRule, rule, err)
	}
	return nil
}

// NextDue returns the first occurrence of t's recurrence strictly after
// after, in the same value form as the task's due date. The series starts at
// the due date, else the start date, else the creation time. An empty
// result means the series has ended.
func NextDue(t TaskData, after time.Time) (string, error) {
	rule := strings.TrimPrefix(strings.TrimSpace(t.RRule), "RRULE:")
	if rule == "" {
		return "", nil
	}

	anchor := t.DueDate
	if anchor == "" {
		anchor = t.StartDate
	}
	if anchor == "" {
		anchor = t.CreatedAt
	}
	start, err := parseTimestamp(anchor)
	if err != nil {
		return "", fmt.Errorf("failed to parse recurrence start %q: %w", anchor, err)
	}

	set, err := rrule.StrToRRuleSet(fmt.Sprintf("DTSTART:%s\nRRULE:%s", start.Format(utcDateTimeLayout), rule))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidRRule, rule, err)
	}
	next := set.After(after, false)
	if next.IsZero() {
		return "", nil
	}

	switch {
	case len(anchor) == len(dateLayout):
		return next.UTC().Format(dateLayout), nil
	case len(anchor) == len(floatingLayout) && !strings.HasSuffix(anchor, "Z"):
		return next.UTC().Format(floatingLayout), nil
	default:
		return next.UTC().Format(utcDateTimeLayout), nil
	}
}
