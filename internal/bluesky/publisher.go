package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/textutil"
)

const (
	// MaxPostGraphemes is the platform limit on post text.
	MaxPostGraphemes = 300

	thumbnailAlt    = "thumbnail"
	thumbnailWidth  = 200
	thumbnailHeight = 150

	createdAtLayout = "2006-01-02T15:04:05.000Z"
)

type Transport interface {
	UploadBlob(ctx context.Context, data io.Reader) (*lexutil.LexBlob, error)
	CreatePost(ctx context.Context, post *bsky.FeedPost) (model.PostRef, error)
}

// Publisher does no retries; the caller decides what a failure means for
// the rest of the thread.
type Publisher struct {
	transport Transport
	now       func() time.Time
}

func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, post model.ThreadPost) (model.PostRef, error) {
	record, err := p.buildRecord(ctx, post)
	if err != nil {
		return model.PostRef{}, err
	}

	ref, err := p.transport.CreatePost(ctx, record)
	if err != nil {
		return model.PostRef{}, apperr.Publish("create_post", "", err)
	}
	return ref, nil
}

func (p *Publisher) buildRecord(ctx context.Context, post model.ThreadPost) (*bsky.FeedPost, error) {
	text := post.Text
	var facets []*bsky.RichtextFacet
	if post.Link != "" {
		text = withLink(post.Text, post.Link)
		facets = DetectLinkFacets(text)
	}

	if n := textutil.Len(text); n > MaxPostGraphemes {
		return nil, apperr.Publish("build_post", "", fmt.Errorf("text is %d graphemes, limit %d", n, MaxPostGraphemes))
	}

	record := &bsky.FeedPost{
		LexiconTypeID: postCollection,
		Text:          text,
		Facets:        facets,
		CreatedAt:     p.now().UTC().Format(createdAtLayout),
	}

	// the blob must exist before a record can embed it
	if post.Image != nil {
		blob, err := p.transport.UploadBlob(ctx, bytes.NewReader(post.Image.Data))
		if err != nil {
			return nil, apperr.Publish("upload_blob", "", err)
		}
		record.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				LexiconTypeID: "app.bsky.embed.images",
				Images: []*bsky.EmbedImages_Image{
					{
						Alt:   thumbnailAlt,
						Image: blob,
						AspectRatio: &bsky.EmbedDefs_AspectRatio{
							Width:  thumbnailWidth,
							Height: thumbnailHeight,
						},
					},
				},
			},
		}
	}

	if post.ReplyTo != nil {
		record.Reply = &bsky.FeedPost_ReplyRef{
			Root:   strongRef(post.ReplyTo.Root),
			Parent: strongRef(post.ReplyTo.Parent),
		}
	}

	return record, nil
}

// withLink appends link on its own line, shortening text so the result
// stays within the post limit.
func withLink(text, link string) string {
	if text == "" {
		return link
	}
	room := MaxPostGraphemes - textutil.Len(link) - 1
	if room <= 0 {
		return link
	}
	return textutil.Truncate(text, room) + "\n" + link
}

func strongRef(ref model.PostRef) *atproto.RepoStrongRef {
	return &atproto.RepoStrongRef{
		LexiconTypeID: "com.atproto.repo.strongRef",
		Uri:           ref.URI,
		Cid:           ref.CID,
	}
}
