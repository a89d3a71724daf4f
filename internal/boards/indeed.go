package boards

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jobtrack/autopilot/internal/entities"
)

type Indeed struct {
	siteAdapter
}

func NewIndeed(newDriver DriverFactory) *Indeed {
	return &Indeed{newSiteAdapter(profile{
		board:                  entities.BoardIndeed,
		loginURL:               "https://secure.indeed.com/auth",
		emailSelector:          "#ifl-InputFormField-3",
		passwordSelector:       "input[type='password']",
		submitLoginSelector:    "button[type='submit']",
		loggedInSelector:       "#AccountMenu",
		searchURL:              indeedSearchURL,
		postingTitleSelector:   ".jobTitle span",
		postingLinkSelector:    "a.jcs-JobTitle",
		postingCompanySelector: "[data-testid='company-name']",
		nextPageSelector:       "a[data-testid='pagination-page-next']",
		applyButtonSelector:    ".indeedApplyButton",
		confirmSelector:        "button[data-testid='submit-application']",
		alreadyAppliedSelector: ".indeed-apply-status-applied",
	}, newDriver)}
}

// Apply rejects postings that bounce to an employer site before the generic
// flow runs; only "Apply now" postings stay on indeed.com.
func (a *Indeed) Apply(ctx context.Context, session *Session, posting JobPosting) (RawResult, error) {

	result, err := a.siteAdapter.Apply(ctx, session, posting)
	if err != nil {
		return result, err
	}

	if result.Outcome == OutcomeSuccess {
		current, currentErr := session.driver.CurrentURL(ctx)
		if currentErr == nil && !strings.Contains(strings.ToLower(current), "indeed.com") {
			return RawResult{Outcome: OutcomeUnexpectedPage, Detail: "redirected off indeed.com"}, nil
		}
	}
	return result, nil
}

func indeedSearchURL(criteria entities.SearchCriteria, page int) string {
	params := url.Values{}
	params.Add("q", criteria.Keywords)
	if criteria.Location != "" {
		params.Add("l", criteria.Location)
	}
	if page > 0 {
		params.Add("start", strconv.Itoa(page*10))
	}
	return fmt.Sprintf("https://www.indeed.com/jobs?%s", params.Encode())
}
