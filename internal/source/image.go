package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
	"github.com/tomakado/containers/set"

	"github.com/kovalyov-valentin/brinet/internal/model"
)

// MaxImageBytes is the largest image the resolver will attach.
const MaxImageBytes = 100 << 20

var imageExtensions = set.New(".jpg", ".jpeg", ".png", ".gif", ".webp")

// HasImageExtension reports whether the path of rawURL ends in a known
// image extension.
func HasImageExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return imageExtensions.Contains(strings.ToLower(path.Ext(u.Path)))
}

// ImageResolver finds an image to attach to a news post.
type ImageResolver struct {
	http *HTTPGetter
	log  *logrus.Entry
	// bodies larger than this are skipped
	limit int64
}

func NewImageResolver(getter *HTTPGetter, log *logrus.Entry) *ImageResolver {
	return &ImageResolver{http: getter, log: log, limit: MaxImageBytes}
}

// Resolve tries the lead image of the linked page first and the listing
// thumbnail second. A nil image with an error means neither worked.
func (r *ImageResolver) Resolve(ctx context.Context, post model.NewsPost) (*model.Image, error) {
	var errs []error

	if post.URL != "" {
		img, err := r.fromPage(ctx, post.URL)
		if err == nil {
			return img, nil
		}
		errs = append(errs, fmt.Errorf("page image: %w", err))
	}

	if post.ThumbnailURL != "" && HasImageExtension(post.ThumbnailURL) {
		img, err := r.download(ctx, post.ThumbnailURL)
		if err == nil {
			return img, nil
		}
		errs = append(errs, fmt.Errorf("thumbnail: %w", err))
	}

	if len(errs) == 0 {
		return nil, errors.New("no image candidates")
	}
	return nil, errors.Join(errs...)
}

func (r *ImageResolver) fromPage(ctx context.Context, pageURL string) (*model.Image, error) {
	resp, err := r.http.Get(ctx, pageURL, "", r.limit)
	if err != nil {
		return nil, err
	}

	// the post may link straight at an image
	if img, ok := asImage(resp); ok {
		return img, nil
	}

	imageURL, err := leadImage(resp.Body, pageURL)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"page": pageURL, "image": imageURL}).Debug("found lead image")

	return r.download(ctx, imageURL)
}

func (r *ImageResolver) download(ctx context.Context, imageURL string) (*model.Image, error) {
	resp, err := r.http.Get(ctx, imageURL, "image/*", r.limit)
	if err != nil {
		return nil, err
	}
	img, ok := asImage(resp)
	if !ok {
		return nil, fmt.Errorf("%s is not an image", imageURL)
	}
	return img, nil
}

func asImage(resp *Response) (*model.Image, bool) {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(resp.Body)
	}
	if !strings.HasPrefix(mediaType, "image/") || len(resp.Body) == 0 {
		return nil, false
	}
	return &model.Image{Data: resp.Body, MimeType: mediaType}, true
}

// leadImage returns the absolute url of the page's main image, asking
// readability first and falling back to the og:image meta tag.
func leadImage(page []byte, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}

	candidate := ""
	if article, err := readability.FromReader(bytes.NewReader(page), base); err == nil {
		candidate = article.Image
	}

	if candidate == "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			return "", fmt.Errorf("parse page: %w", err)
		}
		candidate, _ = doc.Find(`meta[property="og:image"]`).First().Attr("content")
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", errors.New("page has no lead image")
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
