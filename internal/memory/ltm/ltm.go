// Package ltm implements Long-Term Memory: a Qdrant-backed store of
// past interactions and learned patterns, vector-indexed for similarity
// retrieval and scalar-filterable by success score.
package ltm

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragengine/internal/engerr"
	"ragengine/internal/model"
)

// patternIDPrefix distinguishes learned-pattern points from interaction
// points within a single shared collection, by session_id prefix rather
// than a second collection.
const patternIDPrefix = "pattern_"

// Store is the long-term memory contract: persist interactions and
// learned patterns, retrieve the most similar ones to a query vector.
type Store struct {
	client     *qdrant.Client
	collection string
}

// New opens a Store against the named Qdrant collection, parsing dsn the
// same way the vector search backend does (host/port/TLS/api_key).
func New(dsn, collection string) (*Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, engerr.New(engerr.Internal, "ltm.New", err)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: u.Scheme == "https",
		APIKey: u.Query().Get("api_key"),
	})
	if err != nil {
		return nil, engerr.New(engerr.BackendUnavailable, "ltm.New", err)
	}
	return &Store{client: client, collection: collection}, nil
}

func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// SuccessScoreInputs carries the signals the success-score formula
// combines; feedback, when non-nil, overrides the computed base entirely.
type SuccessScoreInputs struct {
	SourceCount  int
	ActionCount  int
	HasCitation  bool
	Feedback     *bool // true = positive, false = negative, nil = none
}

// ComputeSuccessScore derives an interaction's success score: a 0.8 base,
// adjusted for source count, action count, and citation presence, then
// clamped to [0,1]. An explicit feedback signal overrides the computed
// value outright (1.0 positive, 0.3 negative).
func ComputeSuccessScore(in SuccessScoreInputs) float64 {
	if in.Feedback != nil {
		if *in.Feedback {
			return 1.0
		}
		return 0.3
	}
	score := 0.8
	bonus := 0.02 * float64(in.SourceCount)
	if bonus > 0.1 {
		bonus = 0.1
	}
	score += bonus
	switch {
	case in.ActionCount >= 1 && in.ActionCount <= 5:
		score += 0.1
	case in.ActionCount > 10:
		score -= 0.1
	}
	if in.HasCitation {
		score += 0.05
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// SaveInteraction upserts an interaction, keyed by its own ID (a
// deterministic UUID is derived if ID isn't already one).
func (s *Store) SaveInteraction(ctx context.Context, in model.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	payload := map[string]*qdrant.Value{
		"_original_id": qdrant.NewValueString(in.ID),
		"kind":         qdrant.NewValueString("interaction"),
		"query_text":   qdrant.NewValueString(in.QueryText),
		"response":     qdrant.NewValueString(in.Response),
		"session_id":   qdrant.NewValueString(in.SessionID),
		"timestamp":    qdrant.NewValueString(in.Timestamp.Format(time.RFC3339)),
		"success_score": qdrant.NewValueDouble(in.SuccessScore),
		"source_count":  qdrant.NewValueInt(int64(in.SourceCount)),
		"action_count":  qdrant.NewValueInt(int64(in.ActionCount)),
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(in.ID)),
		Vectors: qdrant.NewVectors(in.QueryEmbedding...),
		Payload: payload,
	}
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           &wait,
	})
	if err != nil {
		return engerr.New(engerr.BackendUnavailable, "ltm.SaveInteraction", err)
	}
	return nil
}

// SavePattern upserts a learned pattern under the pattern_ id prefix so it
// coexists with interactions in the same collection without a scan.
func (s *Store) SavePattern(ctx context.Context, p model.LearnedPattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	externalID := patternIDPrefix + p.ID
	payload := map[string]*qdrant.Value{
		"_original_id":  qdrant.NewValueString(externalID),
		"kind":          qdrant.NewValueString("pattern"),
		"pattern_type":  qdrant.NewValueString(p.PatternType),
		"session_id":    qdrant.NewValueString(patternIDPrefix + p.PatternType),
		"description":   qdrant.NewValueString(p.Description),
		"payload":       qdrant.NewValueString(p.Payload),
		"success_score": qdrant.NewValueDouble(p.SuccessScore),
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(externalID)),
		Vectors: qdrant.NewVectors(p.DescriptionEmbedding...),
		Payload: payload,
	}
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           &wait,
	})
	if err != nil {
		return engerr.New(engerr.BackendUnavailable, "ltm.SavePattern", err)
	}
	return nil
}

// RetrieveSimilarInteractions returns the topK interactions closest to
// queryVec with success_score >= minSuccessScore, consistent because Wait
// is set on every upsert (read-your-writes).
func (s *Store) RetrieveSimilarInteractions(ctx context.Context, queryVec []float32, topK int, minSuccessScore float64) ([]model.Interaction, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("kind", "interaction"),
			qdrant.NewRange("success_score", &qdrant.Range{Gte: &minSuccessScore}),
		},
	}
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryVec...),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, engerr.New(engerr.BackendUnavailable, "ltm.RetrieveSimilarInteractions", err)
	}
	out := make([]model.Interaction, 0, len(resp))
	for _, pt := range resp {
		out = append(out, interactionFromPoint(pt))
	}
	return out, nil
}

// patternFilter builds the scalar filter for a pattern lookup: always
// kind=pattern, narrowed to one pattern_type (via its session_id prefix
// key) and a minimum success score when those are given.
func patternFilter(patternType string, minSuccessScore float64) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("kind", "pattern")}
	if patternType != "" {
		must = append(must, qdrant.NewMatch("session_id", patternIDPrefix+patternType))
	}
	if minSuccessScore > 0 {
		must = append(must, qdrant.NewRange("success_score", &qdrant.Range{Gte: &minSuccessScore}))
	}
	return &qdrant.Filter{Must: must}
}

// RetrievePatterns returns up to limit learned patterns closest to
// queryVec, optionally restricted to one patternType ("" = any) and to
// success_score >= minSuccessScore (0 = no floor).
func (s *Store) RetrievePatterns(ctx context.Context, queryVec []float32, patternType string, minSuccessScore float64, limit int) ([]model.LearnedPattern, error) {
	if limit <= 0 {
		limit = 10
	}
	lim := uint64(limit)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryVec...),
		Limit:          &lim,
		Filter:         patternFilter(patternType, minSuccessScore),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, engerr.New(engerr.BackendUnavailable, "ltm.RetrievePatterns", err)
	}
	out := make([]model.LearnedPattern, 0, len(resp))
	for _, pt := range resp {
		out = append(out, patternFromPoint(pt))
	}
	return out, nil
}

// qdrantValueAsInterface unwraps a qdrant payload Value into its
// underlying Go type, mirroring the AsInterface() helper found on
// google.golang.org/protobuf's structpb.Value (qdrant.Value is a fork
// of that type with an added integer variant, and does not expose the
// same helper).
func qdrantValueAsInterface(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		out := map[string]any{}
		for fk, fv := range k.StructValue.GetFields() {
			out[fk] = qdrantValueAsInterface(fv)
		}
		return out
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, lv := range vals {
			out[i] = qdrantValueAsInterface(lv)
		}
		return out
	default:
		return nil
	}
}

func interactionFromPoint(pt *qdrant.ScoredPoint) model.Interaction {
	in := model.Interaction{}
	for k, v := range pt.GetPayload() {
		val := qdrantValueAsInterface(v)
		switch k {
		case "_original_id":
			if s, ok := val.(string); ok {
				in.ID = s
			}
		case "query_text":
			if s, ok := val.(string); ok {
				in.QueryText = s
			}
		case "response":
			if s, ok := val.(string); ok {
				in.Response = s
			}
		case "session_id":
			if s, ok := val.(string); ok {
				in.SessionID = s
			}
		case "timestamp":
			if s, ok := val.(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					in.Timestamp = t
				}
			}
		case "success_score":
			if f, ok := val.(float64); ok {
				in.SuccessScore = f
			}
		case "source_count":
			in.SourceCount = toInt(val)
		case "action_count":
			in.ActionCount = toInt(val)
		}
	}
	return in
}

func patternFromPoint(pt *qdrant.ScoredPoint) model.LearnedPattern {
	p := model.LearnedPattern{}
	for k, v := range pt.GetPayload() {
		val := qdrantValueAsInterface(v)
		switch k {
		case "_original_id":
			if s, ok := val.(string); ok {
				p.ID = s
			}
		case "pattern_type":
			if s, ok := val.(string); ok {
				p.PatternType = s
			}
		case "description":
			if s, ok := val.(string); ok {
				p.Description = s
			}
		case "payload":
			if s, ok := val.(string); ok {
				p.Payload = s
			}
		case "success_score":
			if f, ok := val.(float64); ok {
				p.SuccessScore = f
			}
		}
	}
	return p
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
