package boards

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/jobtrack/autopilot/internal/entities"
)

type Careers24 struct {
	siteAdapter
}

func NewCareers24(newDriver DriverFactory) *Careers24 {
	return &Careers24{newSiteAdapter(profile{
		board:                  entities.BoardCareers24,
		loginURL:               "https://www.careers24.com/account/signin",
		emailSelector:          "#Email",
		passwordSelector:       "#Password",
		submitLoginSelector:    "#btnSignIn",
		loggedInSelector:       ".user-profile-nav",
		searchURL:              careers24SearchURL,
		postingTitleSelector:   ".job-card h2",
		postingLinkSelector:    ".job-card a.job-link",
		postingCompanySelector: ".job-card .company-name",
		nextPageSelector:       "a.pagination-next",
		applyButtonSelector:    "#btnApplyNow",
		confirmSelector:        "#btnConfirmApplication",
		alreadyAppliedSelector: ".applied-badge",
	}, newDriver)}
}

func careers24SearchURL(criteria entities.SearchCriteria, page int) string {
	params := url.Values{}
	params.Add("keyword", criteria.Keywords)
	if criteria.Location != "" {
		params.Add("location", criteria.Location)
	}
	if page > 0 {
		params.Add("page", strconv.Itoa(page+1))
	}
	return fmt.Sprintf("https://www.careers24.com/jobs/?%s", params.Encode())
}
