package cli

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// resolveDate turns a --date style argument into a calendar date. Anything
// shaped like YYYY-MM-DD is returned as typed so validation reports it;
// otherwise phrases such as "yesterday" or "last friday" are resolved
// against now.
func resolveDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || strings.EqualFold(s, "today"):
		return now.Format(models.DateLayout), nil
	case looksLikeDate(s):
		return s, nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil || r == nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "unrecognised date "+`"`+s+`"`+": use YYYY-MM-DD or a phrase like yesterday")
	}
	return r.Time.Format(models.DateLayout), nil
}

func looksLikeDate(s string) bool {
	if len(s) != len(models.DateLayout) {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			if c != '-' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
