package model

import (
	"strconv"
	"time"
)

// Data source contexts. Each one posts from its own Bluesky account.
const (
	SourceCongress  = "congress"
	SourceWorldNews = "worldnews"
)

type Chamber string

const (
	ChamberUnknown Chamber = ""
	ChamberHouse   Chamber = "House"
	ChamberSenate  Chamber = "Senate"
)

// ParseChamber accepts the chamber names the bill API and congress.gov use.
func ParseChamber(s string) Chamber {
	switch s {
	case "House", "house", "House of Representatives":
		return ChamberHouse
	case "Senate", "senate":
		return ChamberSenate
	default:
		return ChamberUnknown
	}
}

// Member of congress sponsoring a bill
type Sponsor struct {
	BioguideID string
	FullName   string
	FirstName  string
	LastName   string
	State      string
	Party      string
	// Zero for senators
	District int
}

// Bill as assembled from the listing record, the detail record and a summary
type Bill struct {
	// Source-assigned identifier, e.g. "1234". Not guaranteed numeric.
	Number   string
	Congress int
	// Bill type as the API reports it: HR, S, HJRES, ...
	Type           string
	OriginChamber  Chamber
	CurrentChamber Chamber
	Title          string
	IntroducedDate time.Time
	UpdateDate     time.Time
	PolicyArea     string
	Sponsors       []Sponsor
	// Plain text, no markup
	SummaryText string
}

// NaturalKey identifies a bill across runs.
func (b Bill) NaturalKey() string {
	return BillKey(b.Congress, b.Number)
}

func BillKey(congress int, number string) string {
	return strconv.Itoa(congress) + "-" + number
}

// Post from the news aggregator
type NewsPost struct {
	ID    string
	Title string
	// Path on reddit.com, starting with a slash
	Permalink string
	// Target the post links to; may equal the permalink for self posts
	URL string
	// Unix seconds
	CreatedAt int64
	// Empty when the listing has none
	ThumbnailURL string
}

func (p NewsPost) NaturalKey() string {
	return p.ID
}

// Image ready for upload
type Image struct {
	Data     []byte
	MimeType string
}

// PostRef points at a published post. Both fields are opaque platform values.
type PostRef struct {
	URI string
	CID string
}

func (r PostRef) IsZero() bool {
	return r.URI == "" && r.CID == ""
}

type ReplyRef struct {
	// First post of the thread
	Root PostRef
	// Post immediately preceding this one
	Parent PostRef
}

// One post of a thread before publication
type ThreadPost struct {
	Text    string
	Link    string
	Image   *Image
	ReplyTo *ReplyRef
}

// PublishedRecord is the append-only trace of a completed thread.
type PublishedRecord struct {
	ID          int64
	Source      string
	NaturalKey  string
	Permalink   string
	RootURI     string
	PublishedAt time.Time
}
