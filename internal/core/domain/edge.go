package domain

// DefaultEdgeLocations is the fixed registry of simulated points of presence.
var DefaultEdgeLocations = []string{
	"us-east-1",
	"us-west-2",
	"eu-west-1",
	"eu-central-1",
	"ap-southeast-1",
	"ap-northeast-1",
}

type EdgeStatus struct {
	Location  string  `json:"location"`
	Status    string  `json:"status"`
	LatencyMs int     `json:"latencyMs"`
	Load      float64 `json:"load"`
}
