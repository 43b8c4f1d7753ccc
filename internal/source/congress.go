package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/textutil"
)

const (
	DefaultCongressBaseURL = "https://api.congress.gov/v3"

	congressListLimit    = 20
	congressListLimitDev = 3
	// detail and summary requests in flight at once
	congressFetchLimit = 4

	apiDateLayout = "2006-01-02"
)

var easternTZ = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// tzdata missing on the host; a fixed EST offset keeps the filter usable
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// SummaryScraper extracts a bill summary from the public bill page.
type SummaryScraper interface {
	Scrape(ctx context.Context, bill model.Bill) (ScrapedSummary, error)
}

type ScrapedSummary struct {
	Text    string
	Chamber model.Chamber
}

// CongressSource reads recently updated bills from the congress.gov API.
type CongressSource struct {
	baseURL string
	apiKey  string
	limit   int
	http    *HTTPGetter
	scraper SummaryScraper
	log     *logrus.Entry
}

type CongressOption func(*CongressSource)

func WithCongressBaseURL(u string) CongressOption {
	return func(s *CongressSource) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithSummaryScraper enables the page scrape fallback.
func WithSummaryScraper(scraper SummaryScraper) CongressOption {
	return func(s *CongressSource) { s.scraper = scraper }
}

func NewCongressSource(apiKey string, dev bool, getter *HTTPGetter, log *logrus.Entry, opts ...CongressOption) *CongressSource {
	s := &CongressSource{
		baseURL: DefaultCongressBaseURL,
		apiKey:  apiKey,
		limit:   congressListLimit,
		http:    getter,
		log:     log,
	}
	if dev {
		s.limit = congressListLimitDev
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BillListItem is one entry of the bill listing.
type BillListItem struct {
	Congress      int    `json:"congress"`
	Number        string `json:"number"`
	Type          string `json:"type"`
	OriginChamber string `json:"originChamber"`
	Title         string `json:"title"`
	UpdateDate    string `json:"updateDate"`
	URL           string `json:"url"`
}

type apiBillDetail struct {
	Congress       int    `json:"congress"`
	Number         string `json:"number"`
	Type           string `json:"type"`
	OriginChamber  string `json:"originChamber"`
	Title          string `json:"title"`
	IntroducedDate string `json:"introducedDate"`
	UpdateDate     string `json:"updateDate"`
	PolicyArea     struct {
		Name string `json:"name"`
	} `json:"policyArea"`
	Sponsors []struct {
		BioguideID string `json:"bioguideId"`
		District   int    `json:"district"`
		FirstName  string `json:"firstName"`
		LastName   string `json:"lastName"`
		FullName   string `json:"fullName"`
		Party      string `json:"party"`
		State      string `json:"state"`
	} `json:"sponsors"`
	Summaries *struct {
		Count int    `json:"count"`
		URL   string `json:"url"`
	} `json:"summaries"`
}

// BillSummary is one version of a bill's summary as the API reports it.
type BillSummary struct {
	ActionDate            string `json:"actionDate"`
	ActionDesc            string `json:"actionDesc"`
	CurrentChamber        string `json:"currentChamber"`
	LastSummaryUpdateDate string `json:"lastSummaryUpdateDate"`
	Text                  string `json:"text"`
}

// ListUpdatedToday returns the bills updated on now's date in US Eastern
// time, each with sponsors and a plain-text summary. Items that fail along
// the way are dropped; their errors are joined into the returned error
// next to whatever did succeed. A listing failure returns no bills.
func (s *CongressSource) ListUpdatedToday(ctx context.Context, now time.Time) ([]model.Bill, error) {
	items, err := s.LatestBills(ctx)
	if err != nil {
		return nil, err
	}

	today := FilterUpdatedOn(items, now)
	s.log.WithFields(logrus.Fields{"stage": "filtering", "listed": len(items), "today": len(today)}).Info("filtered bill listing")
	if len(today) == 0 {
		return nil, nil
	}

	return s.Enrich(ctx, today)
}

// LatestBills fetches the first page of bills sorted by update date.
func (s *CongressSource) LatestBills(ctx context.Context) ([]BillListItem, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(s.limit))
	q.Set("sort", "updateDate+desc")

	var out struct {
		Bills []BillListItem `json:"bills"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/bill?"+q.Encode(), &out); err != nil {
		return nil, apperr.Fetch("list", "", err)
	}
	return out.Bills, nil
}

// FilterUpdatedOn keeps the items whose update date is now's calendar date
// in US Eastern time.
func FilterUpdatedOn(items []BillListItem, now time.Time) []BillListItem {
	today := now.In(easternTZ).Format(apiDateLayout)
	return lo.Filter(items, func(item BillListItem, _ int) bool {
		return datePart(item.UpdateDate) == today
	})
}

// Enrich fetches detail and summary for every item. Fetches run
// concurrently and never cancel each other.
func (s *CongressSource) Enrich(ctx context.Context, items []BillListItem) ([]model.Bill, error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	details := make([]*detailedBill, len(items))
	g := new(errgroup.Group)
	g.SetLimit(congressFetchLimit)
	for i, item := range items {
		g.Go(func() error {
			detail, err := s.fetchDetail(ctx, item)
			if err != nil {
				fail(err)
				return nil
			}
			details[i] = &detail
			return nil
		})
	}
	_ = g.Wait()

	detailed := lo.FilterMap(details, func(d *detailedBill, _ int) (detailedBill, bool) {
		if d == nil {
			return detailedBill{}, false
		}
		return *d, true
	})
	s.log.WithFields(logrus.Fields{"stage": "detailing", "detailed": len(detailed)}).Info("fetched bill details")
	if len(detailed) == 0 {
		return nil, errors.Join(errs...)
	}

	summaries := make(map[string]ScrapedSummary, len(detailed))
	g = new(errgroup.Group)
	g.SetLimit(congressFetchLimit)
	for _, d := range detailed {
		g.Go(func() error {
			summary, err := s.acquireSummary(ctx, d)
			if err != nil {
				fail(err)
				return nil
			}
			mu.Lock()
			summaries[joinKey(d.bill)] = summary
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// bills without a summary were already reported above
	bills := lo.FilterMap(detailed, func(d detailedBill, _ int) (model.Bill, bool) {
		b := d.bill
		summary, ok := summaries[joinKey(b)]
		if !ok {
			return model.Bill{}, false
		}
		b.SummaryText = summary.Text
		if summary.Chamber != model.ChamberUnknown {
			b.CurrentChamber = summary.Chamber
		}
		return b, true
	})

	return bills, errors.Join(errs...)
}

type detailedBill struct {
	bill         model.Bill
	summariesURL string
}

func (s *CongressSource) fetchDetail(ctx context.Context, item BillListItem) (detailedBill, error) {
	key := model.BillKey(item.Congress, item.Number)
	if item.URL == "" {
		return detailedBill{}, apperr.Fetch("detail", key, errors.New("listing item has no detail url"))
	}

	var out struct {
		Bill apiBillDetail `json:"bill"`
	}
	if err := s.getJSON(ctx, s.withKey(item.URL), &out); err != nil {
		return detailedBill{}, apperr.Fetch("detail", key, err)
	}

	d := out.Bill
	bill := model.Bill{
		Number:         lo.Ternary(d.Number != "", d.Number, item.Number),
		Congress:       lo.Ternary(d.Congress != 0, d.Congress, item.Congress),
		Type:           lo.Ternary(d.Type != "", d.Type, item.Type),
		OriginChamber:  model.ParseChamber(lo.Ternary(d.OriginChamber != "", d.OriginChamber, item.OriginChamber)),
		Title:          lo.Ternary(d.Title != "", d.Title, item.Title),
		IntroducedDate: parseAPIDate(d.IntroducedDate),
		UpdateDate:     parseAPIDate(lo.Ternary(d.UpdateDate != "", d.UpdateDate, item.UpdateDate)),
		PolicyArea:     d.PolicyArea.Name,
	}
	bill.CurrentChamber = bill.OriginChamber
	for _, sp := range d.Sponsors {
		bill.Sponsors = append(bill.Sponsors, model.Sponsor{
			BioguideID: sp.BioguideID,
			FullName:   sp.FullName,
			FirstName:  sp.FirstName,
			LastName:   sp.LastName,
			State:      sp.State,
			Party:      sp.Party,
			District:   sp.District,
		})
	}

	detail := detailedBill{bill: bill}
	if d.Summaries != nil {
		detail.summariesURL = d.Summaries.URL
	}
	return detail, nil
}

// joinKey identifies a bill within one listing. Numbers repeat across bill
// types, so HR 100 and S 100 need different keys.
func joinKey(b model.Bill) string {
	return strconv.Itoa(b.Congress) + "/" + strings.ToUpper(b.Type) + "/" + b.Number
}

// acquireSummary prefers the summaries endpoint and falls back to the page
// scrape.
func (s *CongressSource) acquireSummary(ctx context.Context, d detailedBill) (ScrapedSummary, error) {
	key := d.bill.NaturalKey()
	log := s.log.WithFields(logrus.Fields{"stage": "detailing", "key": key})

	if d.summariesURL != "" {
		summary, err := s.latestSummary(ctx, d.summariesURL)
		if err == nil {
			if text := textutil.StripHTML(summary.Text); text != "" {
				return ScrapedSummary{Text: text, Chamber: model.ParseChamber(summary.CurrentChamber)}, nil
			}
			err = errors.New("latest summary is empty")
		}
		log.WithError(err).Warn("summary api unavailable, falling back to page scrape")
	}

	if s.scraper == nil {
		return ScrapedSummary{}, apperr.Fetch("summary", key, errors.New("no summary available and page scraping is disabled"))
	}

	scraped, err := s.scraper.Scrape(ctx, d.bill)
	if err != nil {
		return ScrapedSummary{}, err
	}
	scraped.Text = textutil.StripHTML(scraped.Text)
	if scraped.Text == "" {
		return ScrapedSummary{}, apperr.Fetch("summary", key, errors.New("scraped summary is empty"))
	}
	return scraped, nil
}

func (s *CongressSource) latestSummary(ctx context.Context, summariesURL string) (BillSummary, error) {
	var out struct {
		Summaries []BillSummary `json:"summaries"`
	}
	if err := s.getJSON(ctx, s.withKey(summariesURL), &out); err != nil {
		return BillSummary{}, err
	}
	if len(out.Summaries) == 0 {
		return BillSummary{}, errors.New("no summaries returned")
	}
	return LatestSummary(out.Summaries), nil
}

// LatestSummary picks the summary with the most recent update time. On a tie
// the earlier element wins.
func LatestSummary(summaries []BillSummary) BillSummary {
	latest := summaries[0]
	latestAt := parseAPIDate(latest.LastSummaryUpdateDate)
	for _, s := range summaries[1:] {
		at := parseAPIDate(s.LastSummaryUpdateDate)
		if latestAt.Before(at) {
			latest, latestAt = s, at
		}
	}
	return latest
}

// withKey swaps the query of an API-provided url for our key and format.
func (s *CongressSource) withKey(raw string) string {
	base, _, _ := strings.Cut(raw, "?")
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("format", "json")
	return base + "?" + q.Encode()
}

func (s *CongressSource) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := s.http.Get(ctx, rawURL, "application/json", 0)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	return nil
}

func datePart(s string) string {
	if len(s) >= len(apiDateLayout) {
		return s[:len(apiDateLayout)]
	}
	return s
}

// parseAPIDate accepts the plain dates and RFC 3339 timestamps the API
// mixes. Unparseable values come back as the zero time.
func parseAPIDate(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(apiDateLayout, datePart(s)); err == nil {
		return t
	}
	return time.Time{}
}
