package model

// CoverageSummary condenses benefit lines using the first value found for each part.
type CoverageSummary struct {
	Status      string       `json:"status"`
	Copay       *float64     `json:"copay,omitempty"`
	Deductible  *Deductible  `json:"deductible,omitempty"`
	OutOfPocket *OutOfPocket `json:"outOfPocket,omitempty"`
}

// Display is what the host renders for a verification result.
type Display struct {
	HTML     string           `json:"html"`
	Text     string           `json:"text"`
	Status   string           `json:"status"`
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Coverage *CoverageSummary `json:"coverage,omitempty"`
}
