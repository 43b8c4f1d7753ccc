package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/source"
	"github.com/kovalyov-valentin/brinet/internal/textutil"
)

const (
	postLimit         = 300
	billTitleBudget   = 175
	billSummaryBudget = 300
	newsTitleBudget   = 150
	newsRootBudget    = 275

	// DefaultSponsorBudget is the length the sponsor list may reach before
	// further names are dropped.
	DefaultSponsorBudget = 250

	sponsorsHeader = "Sponsors of this Bill:\n"
	newsLinkText   = "Link to post:"
	dateLayout     = "2006-01-02"
	postedAtLayout = "Jan 2, 2006 3:04 PM"
)

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}()

// BillThread builds the root, summary and sponsor posts of a bill thread.
// Reply references are filled in while publishing.
func BillThread(bill model.Bill, sponsorBudget int) []model.ThreadPost {
	// no link for bill types congress.gov has no page slug for
	pageURL, _ := source.BillPageURL(bill.Congress, bill.Type, bill.Number)

	return []model.ThreadPost{
		{Text: BillRootText(bill, pageURL), Link: pageURL},
		{Text: textutil.Truncate(bill.SummaryText, billSummaryBudget)},
		{Text: SponsorText(bill.Sponsors, sponsorBudget)},
	}
}

// BillRootText renders title and dates so that the text, a newline and link
// fit in one post. Only the title is shortened.
func BillRootText(bill model.Bill, link string) string {
	dates := "First Introduced: " + formatDate(bill.IntroducedDate) + "\n" +
		"Last Updated: " + formatDate(bill.UpdateDate)

	titleBudget := postLimit - textutil.Len(dates) - len("\n\n")
	if link != "" {
		titleBudget -= textutil.Len(link) + len("\n")
	}
	titleBudget = min(titleBudget, billTitleBudget)

	return textutil.Truncate(bill.Title, titleBudget) + "\n\n" + dates
}

// SponsorText lists sponsor names while the text is still shorter than
// budget. The name that crosses the budget is kept whole.
func SponsorText(sponsors []model.Sponsor, budget int) string {
	if budget <= 0 {
		budget = DefaultSponsorBudget
	}

	text := sponsorsHeader
	names := lo.Uniq(lo.FilterMap(sponsors, func(s model.Sponsor, _ int) (string, bool) {
		name := strings.TrimSpace(s.FullName)
		return name, name != ""
	}))
	for _, name := range names {
		if textutil.Len(text) >= budget {
			break
		}
		text += name + "\n"
	}
	return text
}

// NewsThread builds the root post and the link reply of a news thread.
func NewsThread(post model.NewsPost, image *model.Image) []model.ThreadPost {
	return []model.ThreadPost{
		{Text: NewsRootText(post), Image: image},
		{Text: newsLinkText, Link: source.PermalinkURL(post.Permalink)},
	}
}

func NewsRootText(post model.NewsPost) string {
	postedAt := time.Unix(post.CreatedAt, 0).In(eastern).Format(postedAtLayout)
	text := fmt.Sprintf("Posted on %s ET\n\n%s", postedAt, textutil.Truncate(post.Title, newsTitleBudget))
	return textutil.Truncate(text, newsRootBudget)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(dateLayout)
}

// publishThread posts the thread in order. Every reply points at the first
// post as root and at the post before it as parent. On failure it returns
// the references published so far.
func publishThread(ctx context.Context, p Publisher, posts []model.ThreadPost) ([]model.PostRef, error) {
	refs := make([]model.PostRef, 0, len(posts))
	for i, post := range posts {
		if i > 0 {
			post.ReplyTo = &model.ReplyRef{Root: refs[0], Parent: refs[i-1]}
		}

		ref, err := p.Publish(ctx, post)
		if err != nil {
			return refs, fmt.Errorf("post %d of %d: %w", i+1, len(posts), err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
