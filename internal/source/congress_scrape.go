package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/textutil"
)

const congressPageBase = "https://www.congress.gov/bill"

// Renderer returns the HTML of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

var billTypeSlugs = map[string]string{
	"HR":      "house-bill",
	"S":       "senate-bill",
	"HRES":    "house-resolution",
	"SRES":    "senate-resolution",
	"HJRES":   "house-joint-resolution",
	"SJRES":   "senate-joint-resolution",
	"HCONRES": "house-concurrent-resolution",
	"SCONRES": "senate-concurrent-resolution",
}

// Text the bot-protection interstitial shows instead of the page.
var challengeMarkers = []string{
	"Verify you are human",
	"Just a moment...",
}

var introducedIn = regexp.MustCompile(`Introduced in (House|Senate)`)

// BillPageURL builds the congress.gov page address, e.g.
// https://www.congress.gov/bill/118th-congress/house-bill/1234.
func BillPageURL(congress int, billType, number string) (string, error) {
	slug, ok := billTypeSlugs[strings.ToUpper(billType)]
	if !ok {
		return "", fmt.Errorf("unknown bill type %q", billType)
	}
	return fmt.Sprintf("%s/%s-congress/%s/%s", congressPageBase, textutil.Ordinal(congress), slug, number), nil
}

// CongressScraper reads the summary off the rendered public bill page.
type CongressScraper struct {
	renderer Renderer
	log      *logrus.Entry
}

func NewCongressScraper(renderer Renderer, log *logrus.Entry) *CongressScraper {
	return &CongressScraper{renderer: renderer, log: log}
}

func (s *CongressScraper) Scrape(ctx context.Context, bill model.Bill) (ScrapedSummary, error) {
	key := bill.NaturalKey()

	pageURL, err := BillPageURL(bill.Congress, bill.Type, bill.Number)
	if err != nil {
		return ScrapedSummary{}, apperr.Fetch("scrape", key, err)
	}

	html, err := s.renderer.Render(ctx, pageURL)
	if err != nil {
		return ScrapedSummary{}, apperr.Fetch("scrape", key, err)
	}

	if marker, blocked := detectChallenge(html); blocked {
		s.log.WithFields(logrus.Fields{"stage": "detailing", "key": key, "url": pageURL}).Warn("bill page answered with a challenge")
		return ScrapedSummary{}, apperr.ScrapeBlocked("scrape", key, fmt.Errorf("challenge page detected: %q", marker))
	}

	summary, err := ParseBillSummary(html)
	if err != nil {
		return ScrapedSummary{}, apperr.Fetch("scrape", key, err)
	}
	return summary, nil
}

func detectChallenge(html string) (string, bool) {
	for _, marker := range challengeMarkers {
		if strings.Contains(html, marker) {
			return marker, true
		}
	}
	return "", false
}

// ParseBillSummary extracts the summary block of a bill page. The preamble
// above the first paragraph with bold text is skipped. The returned text
// still carries markup.
func ParseBillSummary(html string) (ScrapedSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ScrapedSummary{}, fmt.Errorf("parse bill page: %w", err)
	}

	container := doc.Find("#bill-summary").First()
	if container.Length() == 0 {
		return ScrapedSummary{}, errors.New("bill page has no summary container")
	}

	var summary ScrapedSummary
	if m := introducedIn.FindStringSubmatch(container.Text()); m != nil {
		summary.Chamber = model.ParseChamber(m[1])
	}

	var (
		parts   []string
		started bool
	)
	container.Find("p").Each(func(_ int, p *goquery.Selection) {
		if !started && p.Find("strong, b").Length() > 0 {
			started = true
		}
		if !started {
			return
		}
		if frag, err := goquery.OuterHtml(p); err == nil {
			parts = append(parts, frag)
		}
	})
	if len(parts) == 0 {
		return ScrapedSummary{}, errors.New("bill page summary has no bold paragraph")
	}

	summary.Text = strings.Join(parts, "\n")
	return summary, nil
}
