package tasks

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrUnknownDate = errors.New("unrecognized date")

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// clockPattern spots an explicit time of day in free text.
var clockPattern = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm)\b|\b\d{1,2}:\d{2}\b|\bnoon\b|\bmidnight\b`)

// ParseDue turns user input into a DUE value. iCalendar and ISO forms are
// taken literally; anything else goes through the natural-language parser
// ("tomorrow", "next friday at 5pm"). Dates without a time of day become
// DATE values; the rest become UTC DATE-TIME values.
func ParseDue(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	for _, layout := range []string{dateLayout, utcDateTimeLayout, floatingLayout} {
		if _, err := time.Parse(layout, text); err == nil {
			return text, nil
		}
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC().Format(utcDateTimeLayout), nil
	}

	result, err := dueParser.Parse(text, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownDate, text)
	}
	if clockPattern.MatchString(result.Text) {
		return result.Time.UTC().Format(utcDateTimeLayout), nil
	}
	return result.Time.Format(dateLayout), nil
}
