package bluesky

import (
	"github.com/bluesky-social/indigo/api/bsky"
	"mvdan.cc/xurls/v2"
)

var linkPattern = xurls.Strict()

// DetectLinkFacets marks every URL in text as a link facet. Offsets are byte
// offsets into text, so this must run on the final post text.
func DetectLinkFacets(text string) []*bsky.RichtextFacet {
	var facets []*bsky.RichtextFacet
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(loc[0]),
				ByteEnd:   int64(loc[1]),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{
				{
					RichtextFacet_Link: &bsky.RichtextFacet_Link{
						LexiconTypeID: "app.bsky.richtext.facet#link",
						Uri:           text[loc[0]:loc[1]],
					},
				},
			},
		})
	}
	return facets
}
