package scraper

// GenericSelectors is the last tier of every cascade. The selectors match
// markup conventions shared by most university course finders.
var GenericSelectors = FieldSelectors{
	FieldContainer: {
		".course-list .course",
		".programme-list .programme",
		".search-results .result",
		".courses .course-item",
		`article[class*="course"]`,
		".postgraduate-courses .course",
	},
	FieldTitle: {
		".course-title",
		".programme-title",
		"h2 a",
		"h3 a",
		".title a",
		".course-name",
	},
	FieldLink: {
		`a[href*="course"]`,
		`a[href*="programme"]`,
		`a[href*="masters"]`,
		`a[href*="msc"]`,
		".course-link",
		".read-more",
	},
	FieldFees: {
		".fees",
		".tuition",
		".cost",
		".fee-amount",
		`[class*="fee"]`,
		`[class*="tuition"]`,
	},
	FieldDuration: {
		".duration",
		".length",
		".study-mode",
		`[class*="duration"]`,
		`[class*="length"]`,
	},
}

// Markup of the document the feed fetcher renders from feed items.
const (
	FeedItemClass        = "feed-item"
	FeedDescriptionClass = "description"
	FeedCategoryClass    = "category"
)

// FeedSelectors are tried after a feed target's own selectors and before the
// generic tier.
var FeedSelectors = FieldSelectors{
	FieldContainer:   {"article." + FeedItemClass},
	FieldTitle:       {"h2"},
	FieldDescription: {"p." + FeedDescriptionClass},
	FieldLink:        {"a[href]"},
}
