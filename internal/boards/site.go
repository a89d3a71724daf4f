package boards

import (
	"context"
	"strings"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var captchaSelectors = []string{
	"#captcha",
	".g-recaptcha",
	".h-captcha",
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"#captcha-container",
}

var submissionPhrases = []string{
	"application submitted",
	"successfully applied",
	"thank you for applying",
	"application received",
	"your application has been sent",
}

var rejectionPhrases = []string{
	"you do not meet the requirements",
	"application declined",
	"no longer accepting applications",
	"this position has been filled",
}

var loginPageIndicators = []string{"login", "sign-in", "signin", "log-in"}

// profile holds the per-board URLs and selectors. Everything an adapter does
// that is not in here is an override in the board's own file.
type profile struct {
	board                  entities.Board
	loginURL               string
	emailSelector          string
	passwordSelector       string
	submitLoginSelector    string
	loggedInSelector       string
	searchURL              func(criteria entities.SearchCriteria, page int) string
	postingTitleSelector   string
	postingLinkSelector    string
	postingCompanySelector string
	nextPageSelector       string
	applyButtonSelector    string
	confirmSelector        string
	alreadyAppliedSelector string
}

type siteAdapter struct {
	profile   profile
	newDriver DriverFactory
	limiter   *rate.Limiter
}

func newSiteAdapter(p profile, newDriver DriverFactory) siteAdapter {
	return siteAdapter{profile: p, newDriver: newDriver}
}

func (a *siteAdapter) Board() entities.Board {
	return a.profile.board
}

func (a *siteAdapter) SetRateLimit(maxRequestsPerSecond float32) {
	a.limiter = rate.NewLimiter(rate.Limit(maxRequestsPerSecond), 1)
}

func (a *siteAdapter) await(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *siteAdapter) Login(ctx context.Context, credentials Credentials) (*Session, error) {

	if err := a.await(ctx); err != nil {
		return nil, err
	}

	driver, err := a.newDriver(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open browser page")
	}

	if err = a.login(ctx, driver, credentials); err != nil {
		_ = driver.Close()
		return nil, err
	}

	return &Session{board: a.profile.board, driver: driver}, nil
}

func (a *siteAdapter) login(ctx context.Context, driver Driver, credentials Credentials) error {

	if err := driver.Navigate(ctx, a.profile.loginURL); err != nil {
		return errors.Wrap(err, "failed to open login page")
	}
	if err := driver.Fill(ctx, a.profile.emailSelector, credentials.Email); err != nil {
		return errors.Wrap(err, "failed to fill email")
	}
	if err := driver.Fill(ctx, a.profile.passwordSelector, credentials.Password); err != nil {
		return errors.Wrap(err, "failed to fill password")
	}
	if err := driver.Click(ctx, a.profile.submitLoginSelector); err != nil {
		return errors.Wrap(err, "failed to submit login form")
	}

	loggedIn, err := driver.Exists(ctx, a.profile.loggedInSelector)
	if err != nil {
		return err
	}
	if !loggedIn {
		return ErrAuthFailure
	}
	return nil
}

func (a *siteAdapter) Search(ctx context.Context, session *Session, criteria entities.SearchCriteria) (*Postings, error) {

	if session == nil {
		return nil, errors.New("session is nil")
	}

	page := 0
	return &Postings{fetch: func(ctx context.Context) ([]JobPosting, bool, error) {

		if err := a.await(ctx); err != nil {
			return nil, false, err
		}

		if err := session.driver.Navigate(ctx, a.profile.searchURL(criteria, page)); err != nil {
			return nil, false, errors.Wrap(err, "failed to open search page")
		}
		page++

		postings, err := a.collectPostings(ctx, session.driver)
		if err != nil {
			return nil, false, err
		}
		if len(postings) == 0 {
			return nil, false, nil
		}

		more, err := session.driver.Exists(ctx, a.profile.nextPageSelector)
		if err != nil {
			return postings, false, nil
		}
		return postings, more, nil
	}}, nil
}

func (a *siteAdapter) collectPostings(ctx context.Context, driver Driver) ([]JobPosting, error) {

	titles, err := driver.TextAll(ctx, a.profile.postingTitleSelector)
	if err != nil {
		return nil, err
	}
	urls, err := driver.AttrAll(ctx, a.profile.postingLinkSelector, "href")
	if err != nil {
		return nil, err
	}
	companies, err := driver.TextAll(ctx, a.profile.postingCompanySelector)
	if err != nil {
		return nil, err
	}

	count := len(titles)
	if len(urls) < count {
		count = len(urls)
	}

	postings := make([]JobPosting, 0, count)
	for i := 0; i < count; i++ {
		posting := JobPosting{Board: a.profile.board, URL: urls[i], Title: titles[i]}
		if i < len(companies) {
			posting.Company = companies[i]
		}
		postings = append(postings, posting)
	}
	return postings, nil
}

func (a *siteAdapter) Apply(ctx context.Context, session *Session, posting JobPosting) (RawResult, error) {

	if session == nil {
		return RawResult{}, errors.New("session is nil")
	}

	if err := a.await(ctx); err != nil {
		return outcomeFromError(err), nil
	}

	driver := session.driver
	if err := driver.Navigate(ctx, posting.URL); err != nil {
		return outcomeFromError(err), nil
	}

	if present, _ := captchaPresent(ctx, driver); present {
		return RawResult{Outcome: OutcomeCaptchaPresented}, nil
	}

	if a.profile.alreadyAppliedSelector != "" {
		if applied, _ := driver.Exists(ctx, a.profile.alreadyAppliedSelector); applied {
			return RawResult{Outcome: OutcomeAlreadyApplied}, nil
		}
	}

	if err := driver.Click(ctx, a.profile.applyButtonSelector); err != nil {
		return a.classifyClickFailure(ctx, driver, err), nil
	}

	if present, _ := captchaPresent(ctx, driver); present {
		return RawResult{Outcome: OutcomeCaptchaPresented}, nil
	}

	if a.profile.confirmSelector != "" {
		if err := driver.Click(ctx, a.profile.confirmSelector); err != nil {
			return a.classifyClickFailure(ctx, driver, err), nil
		}
	}

	return a.verifySubmission(ctx, driver), nil
}

func (a *siteAdapter) classifyClickFailure(ctx context.Context, driver Driver, err error) RawResult {

	if errors.Is(err, ErrElementNotFound) {
		if onLoginPage(ctx, driver) {
			return RawResult{Outcome: OutcomeUnexpectedPage, Detail: "redirected to login page"}
		}
		return RawResult{Outcome: OutcomeElementNotFound, Detail: err.Error()}
	}
	return outcomeFromError(err)
}

func (a *siteAdapter) verifySubmission(ctx context.Context, driver Driver) RawResult {

	source, err := driver.PageSource(ctx)
	if err != nil {
		return outcomeFromError(err)
	}

	lowered := strings.ToLower(source)
	for _, phrase := range submissionPhrases {
		if strings.Contains(lowered, phrase) {
			return RawResult{Outcome: OutcomeSuccess, Detail: phrase}
		}
	}
	for _, phrase := range rejectionPhrases {
		if strings.Contains(lowered, phrase) {
			return RawResult{Outcome: OutcomeRejected, Detail: phrase}
		}
	}
	return RawResult{Outcome: OutcomeUnexpectedPage, Detail: "no submission confirmation found"}
}

func captchaPresent(ctx context.Context, driver Driver) (bool, error) {
	for _, selector := range captchaSelectors {
		present, err := driver.Exists(ctx, selector)
		if err != nil {
			return false, err
		}
		if present {
			return true, nil
		}
	}
	return false, nil
}

func onLoginPage(ctx context.Context, driver Driver) bool {
	current, err := driver.CurrentURL(ctx)
	if err != nil {
		return false
	}
	current = strings.ToLower(current)
	for _, indicator := range loginPageIndicators {
		if strings.Contains(current, indicator) {
			return true
		}
	}
	return false
}

// outcomeFromError folds driver failures into the raw outcome set. Timeouts
// and cancellations count as network errors per the retry model.
func outcomeFromError(err error) RawResult {
	if errors.Is(err, ErrElementNotFound) {
		return RawResult{Outcome: OutcomeElementNotFound, Detail: err.Error()}
	}
	return RawResult{Outcome: OutcomeNetworkError, Detail: err.Error()}
}
