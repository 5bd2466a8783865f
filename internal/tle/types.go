package tle

// Provenance describes the catalog request that produced a batch of element sets.
// It is constant across a batch and never derived from the element text.
type Provenance struct {
	QueryType QueryType `json:"query_type" yaml:"query_type"`
	Value     string    `json:"value" yaml:"value"`
	Format    Format    `json:"format" yaml:"format"`
}

// ElementSet is a decoded three-line orbital element set.
// Values are immutable once decoded; RawLines holds the trimmed source lines
// (name, line 1, line 2) exactly as they were decoded.
type ElementSet struct {
	Provenance `yaml:",inline"`

	RawLines      [3]string `json:"raw_data" yaml:"raw_data"`
	CatalogNumber int       `json:"catalog_number" yaml:"catalog_number"`
	SatelliteName string    `json:"satellite_name" yaml:"satellite_name"`
	Epoch         string    `json:"epoch" yaml:"epoch"` // YYDDD.FFFFFFFF, verbatim

	InclinationDeg float64 `json:"inclination" yaml:"inclination"`
	RAANDeg        float64 `json:"raan" yaml:"raan"`
	Eccentricity   float64 `json:"eccentricity" yaml:"eccentricity"`
	ArgPerigeeDeg  float64 `json:"argument_of_perigee" yaml:"argument_of_perigee"`
	MeanAnomalyDeg float64 `json:"mean_anomaly" yaml:"mean_anomaly"`
	MeanMotion     float64 `json:"mean_motion" yaml:"mean_motion"` // revolutions per day
}

// Batch is the outcome of decoding a flat sequence of lines.
type Batch struct {
	Records []ElementSet
	Groups  int // complete 3-line groups visited
	Skipped int // groups discarded as malformed
}
