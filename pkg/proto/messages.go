// Package proto defines the message types exchanged over the JSON-over-TCP
// RPC layer (see pkg/grpc) between tmserver and remote connectors.
//
// Fragments travel as inline-markup strings; receivers rebuild them with
// fragment.Parse.
package proto

// Method names served by tmserver.
const (
	MethodSearch = "TM.Search"
	MethodStats  = "TM.Stats"
	MethodHealth = "TM.Health"
)

// Search modes.
const (
	ModeFuzzy       = "fuzzy"
	ModeExact       = "exact"
	ModeConcordance = "concordance"
)

// ---------- Search ----------

// SearchRequest is the input to the Search RPC.
type SearchRequest struct {
	Query        string            `json:"query"`
	Mode         string            `json:"mode,omitempty"`
	Threshold    int               `json:"threshold"`
	MaxHits      int               `json:"max_hits,omitempty"` // 0: server default, negative: unlimited
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Hits       []Hit  `json:"hits"`
	Candidates int32  `json:"candidates"`
	Generation uint64 `json:"generation"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Hit is a single scored translation unit.
type Hit struct {
	DocID        uint64            `json:"doc_id"`
	Score        int32             `json:"score"`
	MatchType    string            `json:"match_type"`
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ---------- Stats ----------

// StatsRequest takes no parameters.
type StatsRequest struct{}

// StatsResponse contains index-level statistics.
type StatsResponse struct {
	Units      int64  `json:"units"`
	Terms      int64  `json:"terms"`
	Generation uint64 `json:"generation"`
	NextDocID  uint64 `json:"next_doc_id"`
	Segments   int64  `json:"segments"`
	LastFlush  int64  `json:"last_flush,omitempty"`
	Sessions   int64  `json:"sessions,omitempty"`
}

// HealthCheckResponse mirrors the gRPC health check response.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
