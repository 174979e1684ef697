package backends

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragengine/internal/engerr"
	"ragengine/internal/model"
)

// payloadOriginalID stashes a caller-supplied non-UUID id under a fixed
// payload field when a deterministic UUID had to be derived for
// Qdrant's point-id requirement.
const payloadOriginalID = "_original_id"

// QdrantVector is a VectorBackend backed by a Qdrant collection -- the
// production implementation of the dense-search modality, kept to the
// read-only VectorBackend contract (no Upsert/Delete exposed here;
// document ingestion populates the collection out of band).
type QdrantVector struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantVector parses dsn into client settings: scheme selects TLS,
// host/port default to Qdrant's gRPC default (localhost:6334), and
// ?api_key= supplies the API key.
func NewQdrantVector(dsn, collection string) (*QdrantVector, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, engerr.New(engerr.Internal, "QdrantVector.New", err)
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
	cfg := &qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: u.Scheme == "https",
		APIKey: u.Query().Get("api_key"),
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, engerr.New(engerr.BackendUnavailable, "QdrantVector.New", err)
	}
	return &QdrantVector{client: client, collection: collection}, nil
}

// pointID returns a valid Qdrant point id for an external chunk id,
// deriving a deterministic UUIDv5 when id isn't already a UUID so the
// original id can still be recovered from the returned payload.
func pointID(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

// Search implements VectorBackend.
func (q *QdrantVector) Search(ctx context.Context, queryVec []float32, topK int, filters map[string]string) ([]model.SourceChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(queryVec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		req.Filter = buildFilter(filters)
	}
	resp, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, engerr.New(engerr.BackendUnavailable, "QdrantVector.Search", err)
	}
	out := make([]model.SourceChunk, 0, len(resp))
	for _, pt := range resp {
		out = append(out, chunkFromPoint(pt))
	}
	return out, nil
}

func buildFilter(filters map[string]string) *qdrant.Filter {
	must := make([]*qdrant.Condition, 0, len(filters))
	for k, v := range filters {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
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

func chunkFromPoint(pt *qdrant.ScoredPoint) model.SourceChunk {
	md := map[string]any{}
	chunkID := ""
	docID := ""
	docName := ""
	text := ""
	for k, v := range pt.GetPayload() {
		val := qdrantValueAsInterface(v)
		switch k {
		case payloadOriginalID:
			if s, ok := val.(string); ok {
				chunkID = s
			}
		case "document_id":
			if s, ok := val.(string); ok {
				docID = s
			}
		case "document_name":
			if s, ok := val.(string); ok {
				docName = s
			}
		case "text":
			if s, ok := val.(string); ok {
				text = s
			}
		default:
			md[k] = val
		}
	}
	if chunkID == "" {
		chunkID = idString(pt.GetId())
	}
	return model.SourceChunk{
		ChunkID:      chunkID,
		DocumentID:   docID,
		DocumentName: docName,
		Text:         text,
		Score:        float64(pt.GetScore()),
		Modality:     model.ModalityText,
		Metadata:     md,
	}
}

func idString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strings.TrimSpace(strconv.FormatUint(v.Num, 10))
	default:
		return ""
	}
}
