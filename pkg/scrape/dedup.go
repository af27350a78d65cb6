// Package scrape drives one search query across result pages: fetching,
// structural extraction, two-pass deduplication around URL resolution, and
// optional full-page content enrichment.
package scrape

import (
	"search-scraper/pkg/models"
)

// Deduplicate merges records whose primary URL collides and reconciles each
// survivor's related links, including related links whose URL turns out to
// be the record's own. Records without a URL cannot be keyed and are
// dropped. Output order follows first insertion, so the result is
// deterministic for identical input and running Deduplicate twice yields
// the same list.
//
// It runs twice per scrape: once on raw redirect URLs before resolution,
// once on final URLs after.
func Deduplicate(records []*models.SearchResult) []*models.SearchResult {
	byURL := make(map[string]*models.SearchResult, len(records))
	order := make([]string, 0, len(records))

	for _, rec := range records {
		if rec == nil || rec.URL == "" {
			continue
		}
		if existing, ok := byURL[rec.URL]; ok {
			mergeResults(existing, rec)
			continue
		}
		byURL[rec.URL] = rec
		order = append(order, rec.URL)
	}

	results := make([]*models.SearchResult, 0, len(order))
	for _, key := range order {
		rec := byURL[key]
		reconcileRelated(rec)
		results = append(results, rec)
	}
	return results
}

// mergeResults folds source into target: empty scalar fields on target take
// the source's value, a source carrying both a title and content contributes
// a {title: content} overflow pair, and related links are concatenated.
// First-seen non-empty values always win.
func mergeResults(target, source *models.SearchResult) {
	if target.Title == "" && source.Title != "" {
		target.Title = source.Title
	}
	if target.Content == "" && source.Content != "" {
		target.Content = source.Content
	}
	if target.Source == "" && source.Source != "" {
		target.Source = source.Source
	}
	if target.Time == "" && source.Time != "" {
		target.Time = source.Time
	}
	if source.Title != "" && source.Content != "" {
		target.More = append(target.More, models.TitleContent{Title: source.Title, Content: source.Content})
	}
	target.RelatedLinks = append(target.RelatedLinks, source.RelatedLinks...)
}

// mergeRelated applies the same merge rule between two related links.
func mergeRelated(target, source *models.RelatedLink) {
	if target.Title == "" && source.Title != "" {
		target.Title = source.Title
	}
	if target.Content == "" && source.Content != "" {
		target.Content = source.Content
	}
	if target.Source == "" && source.Source != "" {
		target.Source = source.Source
	}
	if target.Time == "" && source.Time != "" {
		target.Time = source.Time
	}
	if source.Title != "" && source.Content != "" {
		target.More = append(target.More, models.TitleContent{Title: source.Title, Content: source.Content})
	}
}

// foldIntoParent absorbs a related link whose URL equals the owning record's
// own URL. The link is not a separate entity, so its fields fill the
// parent's empty scalars.
func foldIntoParent(parent *models.SearchResult, rl *models.RelatedLink) {
	if parent.Title == "" && rl.Title != "" {
		parent.Title = rl.Title
	}
	if parent.Content == "" && rl.Content != "" {
		parent.Content = rl.Content
	}
	if parent.Source == "" && rl.Source != "" {
		parent.Source = rl.Source
	}
	if parent.Time == "" && rl.Time != "" {
		parent.Time = rl.Time
	}
}

// reconcileRelated deduplicates a record's related links by URL, folding
// self-referential links into the record itself. The record's More list is
// unaffected by this step: only collisions among the related links
// themselves extend a related link's More.
func reconcileRelated(rec *models.SearchResult) {
	if len(rec.RelatedLinks) == 0 {
		return
	}

	byURL := make(map[string]*models.RelatedLink, len(rec.RelatedLinks))
	order := make([]string, 0, len(rec.RelatedLinks))

	for i := range rec.RelatedLinks {
		rl := &rec.RelatedLinks[i]
		if rl.URL == "" {
			continue
		}
		if rl.URL == rec.URL {
			foldIntoParent(rec, rl)
			continue
		}
		if existing, ok := byURL[rl.URL]; ok {
			mergeRelated(existing, rl)
			continue
		}
		// Copy so later merges do not alias the original backing array.
		cp := *rl
		byURL[rl.URL] = &cp
		order = append(order, rl.URL)
	}

	deduped := make([]models.RelatedLink, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, *byURL[key])
	}
	rec.RelatedLinks = deduped
}
