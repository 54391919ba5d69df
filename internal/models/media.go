package models

// MediaCandidate is a provider search hit under evaluation. Candidates
// are transient and never persisted; only the chosen asset's
// fingerprint reaches the ledger.
type MediaCandidate struct {
	Provider       string `json:"provider"`
	SourceURL      string `json:"source_url"`
	Data           []byte `json:"-"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Description    string `json:"description"`
	Popularity     int    `json:"popularity"`
	RelevanceScore int    `json:"relevance_score"`
	QualityScore   int    `json:"quality_score"`
}

// AspectPreset is one of the three output shapes accepted images are
// normalized to.
type AspectPreset string

const (
	AspectLandscape AspectPreset = "landscape" // 16:9
	AspectPortrait  AspectPreset = "portrait"  // 4:5
	AspectSquare    AspectPreset = "square"    // 1:1
)

// Dimensions returns the target pixel size for the preset.
func (a AspectPreset) Dimensions() (width, height int) {
	switch a {
	case AspectPortrait:
		return 1080, 1350
	case AspectSquare:
		return 1080, 1080
	default:
		return 1600, 900
	}
}

// Media is a normalized, publish-ready image with its provenance.
type Media struct {
	Data        []byte       `json:"-"`
	ContentType string       `json:"content_type"`
	SourceURL   string       `json:"source_url"`
	Provider    string       `json:"provider"`
	Description string       `json:"description"`
	AltText     string       `json:"alt_text"`
	Preset      AspectPreset `json:"preset"`
}
