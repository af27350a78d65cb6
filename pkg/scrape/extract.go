package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

// Selector lists for Baidu-style result markup. Each list is tried in order
// and the first selector with a match wins.
var (
	titleSelectors = []string{
		"h3[class*='title']",
		"h3[class*='t']",
	}
	contentSelectors = []string{
		"div[class*='desc']",
		"div[class*='text']",
		"span[class*='content-right']",
		"span[class*='text']",
	}
	sourceSelectors = []string{
		"div[class*='showurl'], div[class*='source-text']",
		"span[class*='showurl'], span[class*='source-text'], span.c-color-gray",
	}
	timeSelectors = []string{
		"span[class*='time']",
		"span.c-color-gray2",
		"span.n2n9e2q",
	}
	relatedContentSelectors = []string{
		"div[class*=text], div[class*=abs], div[class*=desc], div[class*=content]",
		"p[class*=text], p[class*=desc], p[class*=content]",
		"span[class*=text], span[class*=desc], span[class*=content], span[class*=clamp]",
	}
	relatedSourceSelectors = []string{
		"span[class*=small], span[class*=showurl], span[class*=source-text], span[class*=site-name]",
		"div[class*=source-text], div[class*=showurl], div[class*=small]",
	}
)

// Advertisement detection patterns
var (
	adStyleKeywords = []string{"!important"}
	adClassKeywords = []string{"tuiguang"}
	adTagSelectors  = []string{"[class*='tuiguang']"}
)

// containerClassKeywords mark a div as the logical container of a related
// link when walking up from the link tag.
var containerClassKeywords = []string{"item", "container", "result", "sitelink"}

// Extractor turns one result page's markup into structured records. The
// engine config supplies the results container and per-result selectors;
// the field-level selector lists above are shared.
type Extractor struct {
	engine    config.EngineConfig
	filterAds bool
	log       *logrus.Entry
}

func NewExtractor(engine config.EngineConfig, filterAds bool, log *logrus.Entry) *Extractor {
	return &Extractor{engine: engine, filterAds: filterAds, log: log}
}

// Parse extracts records from a result page document. A missing results
// container usually means an anti-scraping block or error page and is
// reported as ErrBlockedPage. The returned records carry raw (redirect)
// URLs and are deduplicated within the page.
func (e *Extractor) Parse(doc *goquery.Document) ([]*models.SearchResult, error) {
	root := doc.Find(e.engine.ResultsContainer)
	if root.Length() == 0 {
		return nil, fmt.Errorf("%w: results container %q not found", utils.ErrBlockedPage, e.engine.ResultsContainer)
	}

	blocks := root.Find(e.engine.ResultSelector)
	if blocks.Length() == 0 {
		e.log.Warn("No result blocks found on page")
		return nil, nil
	}
	e.log.Debugf("Found %d potential result blocks", blocks.Length())

	var records []*models.SearchResult
	blocks.Each(func(_ int, block *goquery.Selection) {
		if e.filterAds && isAdvertisement(block) {
			e.log.Debug("Skipping advertisement block")
			return
		}

		title, link := extractTitleAndLink(block)
		if title == "" && link == "" {
			return
		}

		records = append(records, &models.SearchResult{
			Title:        title,
			URL:          link,
			Content:      selectFirstText(block, contentSelectors),
			Source:       selectUniqueText(block, sourceSelectors),
			Time:         extractTime(block),
			RelatedLinks: extractRelatedLinks(block, link),
		})
	})

	return Deduplicate(records), nil
}

// extractTitleAndLink finds the main title and its href. The link lives in
// an <a> inside the title heading; a heading without one is skipped.
func extractTitleAndLink(block *goquery.Selection) (title, link string) {
	for _, selector := range titleSelectors {
		heading := block.Find(selector).First()
		if heading.Length() == 0 {
			continue
		}
		a := heading.Find("a").First()
		if a.Length() == 0 {
			continue
		}
		return strings.TrimSpace(a.Text()), a.AttrOr("href", "")
	}
	return "", ""
}

// selectFirstText returns the text of the first element matching any
// selector in the list.
func selectFirstText(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if m := s.Find(selector); m.Length() > 0 {
			return strings.TrimSpace(m.First().Text())
		}
	}
	return ""
}

// selectUniqueText returns the text of the matching element only when the
// match is unambiguous; multiple matches for the first matching selector
// yield an empty string.
func selectUniqueText(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		m := s.Find(selector)
		if m.Length() == 0 {
			continue
		}
		if m.Length() == 1 {
			return strings.TrimSpace(m.Text())
		}
		return ""
	}
	return ""
}

// extractTime applies the ambiguity rule of selectUniqueText with special
// handling for span.c-color-gray2, whose class is reused for non-time text:
// only elements carrying that class as their sole attribute count.
func extractTime(s *goquery.Selection) string {
	for _, selector := range timeSelectors {
		m := s.Find(selector)
		if m.Length() == 0 {
			continue
		}

		if selector == "span.c-color-gray2" {
			filtered := m.FilterFunction(func(_ int, el *goquery.Selection) bool {
				n := el.Get(0)
				return len(n.Attr) == 1 && n.Attr[0].Key == "class" && n.Attr[0].Val == "c-color-gray2"
			})
			switch filtered.Length() {
			case 0:
				continue
			case 1:
				return strings.TrimSpace(filtered.Text())
			default:
				return ""
			}
		}

		if m.Length() == 1 {
			return strings.TrimSpace(m.Text())
		}
		return ""
	}
	return ""
}

func isAdvertisement(block *goquery.Selection) bool {
	style := block.AttrOr("style", "")
	for _, kw := range adStyleKeywords {
		if strings.Contains(style, kw) {
			return true
		}
	}
	class := block.AttrOr("class", "")
	for _, kw := range adClassKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	for _, selector := range adTagSelectors {
		if block.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

// extractRelatedLinks collects the secondary links inside a result block,
// skipping the main link and anchors without text, and associates each with
// content/source/time from its logical container.
func extractRelatedLinks(block *goquery.Selection, mainLink string) []models.RelatedLink {
	var links []models.RelatedLink
	block.Find("a").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		title := strings.TrimSpace(a.Text())
		if href == "" || title == "" || href == mainLink {
			return
		}

		var content, source, timeStr string
		if container := findLinkContainer(a, block); container != nil {
			content = selectFirstText(container, relatedContentSelectors)
			source = selectFirstText(container, relatedSourceSelectors)
			timeStr = extractTime(container)
		}

		links = append(links, models.RelatedLink{
			Title:   title,
			URL:     href,
			Content: content,
			Source:  source,
			Time:    timeStr,
		})
	})
	return links
}

// findLinkContainer walks up from a link tag looking for the div that
// logically groups the link with its description, stopping at the result
// block. Divs whose class names a container-like role win; otherwise the
// nearest parent div is used.
func findLinkContainer(link, block *goquery.Selection) *goquery.Selection {
	blockNode := block.Get(0)

	for cur := link.Parent(); cur.Length() > 0 && cur.Get(0) != blockNode; cur = cur.Parent() {
		node := cur.Get(0)
		if node.Data != "div" {
			continue
		}
		class, ok := cur.Attr("class")
		if !ok {
			continue
		}
		lower := strings.ToLower(class)
		for _, kw := range containerClassKeywords {
			if strings.Contains(lower, kw) {
				return cur
			}
		}
	}

	for cur := link.Parent(); cur.Length() > 0 && cur.Get(0) != blockNode; cur = cur.Parent() {
		if cur.Get(0).Data == "div" {
			return cur
		}
	}
	return nil
}
