package boards

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/jobtrack/autopilot/internal/entities"
)

// LinkedIn drives the Easy Apply flow. Postings requiring an external
// application site are reported as unexpected pages rather than followed.
type LinkedIn struct {
	siteAdapter
}

func NewLinkedIn(newDriver DriverFactory) *LinkedIn {
	return &LinkedIn{newSiteAdapter(profile{
		board:                  entities.BoardLinkedIn,
		loginURL:               "https://www.linkedin.com/login",
		emailSelector:          "#username",
		passwordSelector:       "#password",
		submitLoginSelector:    "button[type='submit']",
		loggedInSelector:       ".global-nav__me",
		searchURL:              linkedInSearchURL,
		postingTitleSelector:   ".job-card-list__title",
		postingLinkSelector:    "a.job-card-list__title",
		postingCompanySelector: ".job-card-container__primary-description",
		nextPageSelector:       "button[aria-label='View next page']",
		applyButtonSelector:    ".jobs-apply-button",
		confirmSelector:        "button[aria-label='Submit application']",
		alreadyAppliedSelector: ".artdeco-inline-feedback--success",
	}, newDriver)}
}

func linkedInSearchURL(criteria entities.SearchCriteria, page int) string {
	params := url.Values{}
	params.Add("keywords", criteria.Keywords)
	if criteria.Location != "" {
		params.Add("location", criteria.Location)
	}
	// Easy Apply only; external applications cannot be automated here.
	params.Add("f_AL", "true")
	if page > 0 {
		params.Add("start", strconv.Itoa(page*25))
	}
	return fmt.Sprintf("https://www.linkedin.com/jobs/search/?%s", params.Encode())
}
