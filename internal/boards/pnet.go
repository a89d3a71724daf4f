package boards

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/jobtrack/autopilot/internal/entities"
)

type PNet struct {
	siteAdapter
}

func NewPNet(newDriver DriverFactory) *PNet {
	return &PNet{newSiteAdapter(profile{
		board:                  entities.BoardPNet,
		loginURL:               "https://www.pnet.co.za/candidate/login",
		emailSelector:          "#login-email",
		passwordSelector:       "#login-password",
		submitLoginSelector:    "button[type='submit']",
		loggedInSelector:       ".candidate-menu",
		searchURL:              pnetSearchURL,
		postingTitleSelector:   "[data-at='job-item-title']",
		postingLinkSelector:    "a[data-at='job-item-title']",
		postingCompanySelector: "[data-at='job-item-company-name']",
		nextPageSelector:       "a[aria-label='Next']",
		applyButtonSelector:    "[data-at='apply-button']",
		alreadyAppliedSelector: "[data-at='already-applied-hint']",
	}, newDriver)}
}

func pnetSearchURL(criteria entities.SearchCriteria, page int) string {
	params := url.Values{}
	params.Add("q", criteria.Keywords)
	if criteria.Location != "" {
		params.Add("location", criteria.Location)
	}
	if criteria.SalaryMin > 0 {
		params.Add("salary", strconv.Itoa(criteria.SalaryMin))
	}
	if page > 0 {
		params.Add("page", strconv.Itoa(page+1))
	}
	return fmt.Sprintf("https://www.pnet.co.za/jobs/search?%s", params.Encode())
}
