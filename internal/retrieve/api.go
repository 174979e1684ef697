package retrieve

import "ragengine/internal/model"

// Options controls one Search call.
type Options struct {
	TopK           int
	Mode           Mode
	Alpha          float64 // text weight in modality fusion, default 0.6
	Beta           float64 // image weight, default 0.2
	Gamma          float64 // table weight, default 0.2
	FtK            int
	VecK           int
	RRFK           int // default 60
	Diversify      bool
	Filters        map[string]string
	ExpansionCount int // 1..N query variants; 1 = no expansion
}

// Result is one fused-and-ranked SourceChunk plus its fusion provenance,
// handed back to the caller in place order.
type Result struct {
	Chunk       model.SourceChunk
	HasBoth     bool
	Explanation map[string]any
}

// Response is the top-level output of Search.
type Response struct {
	Query string
	Items []Result
	Debug map[string]any
}
