// Package model holds the data types shared across the retrieval, memory,
// and agent packages. Keeping them in one leaf package avoids import
// cycles between retrieve, memory, and agentgraph.
package model

import "time"

// Modality identifies which retrieval backend produced a SourceChunk.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityTable Modality = "table"
	ModalityWeb   Modality = "web"
)

// SourceChunk is a single retrieved unit of evidence.
type SourceChunk struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Text         string
	Score        float64
	Modality     Modality
	Metadata     map[string]any
}

// StepKind enumerates the kinds of Step emitted on the Step Stream.
type StepKind string

const (
	StepMemory      StepKind = "memory"
	StepPlanning    StepKind = "planning"
	StepThought     StepKind = "thought"
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
	StepReflection  StepKind = "reflection"
	StepResponse    StepKind = "response"
	StepError       StepKind = "error"
	StepInfo        StepKind = "info"
)

// Step is one ordered, typed event in a Query's lifecycle.
type Step struct {
	StepID    string
	Kind      StepKind
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// ToolName enumerates the tools an Action may invoke.
type ToolName string

const (
	ToolVectorSearch ToolName = "vector_search"
	ToolLocalData    ToolName = "local_data"
	ToolWebSearch    ToolName = "web_search"
)

// Action is a single tool invocation decided by the react_reasoning node.
type Action struct {
	Tool    ToolName
	Input   map[string]any
	Thought string
}

// ActionResult is the outcome of executing an Action.
type ActionResult struct {
	Action     Action
	Observation string
	Retrieved  []SourceChunk
	Err        error
}

// MessageRole enumerates chat roles stored in STM.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ResponsePath marks which path(s) contributed to an answer.
type ResponsePath string

const (
	PathSpeculative ResponsePath = "speculative"
	PathAgentic     ResponsePath = "agentic"
	PathHybrid      ResponsePath = "hybrid"
)

// Message is one entry in a session's short-term message log.
type Message struct {
	Role      MessageRole
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionState is the logical STM model for one session.
type SessionState struct {
	Messages      []Message
	WorkingMemory map[string]any
	TTLDeadline   time.Time
}

// Interaction is a single past query/response pair persisted to LTM.
type Interaction struct {
	ID             string
	QueryText      string
	QueryEmbedding []float32
	Response       string
	SessionID      string
	Timestamp      time.Time
	SuccessScore   float64
	SourceCount    int
	ActionCount    int
}

// LearnedPattern is a reusable strategy persisted to LTM.
type LearnedPattern struct {
	ID                  string
	PatternType         string
	Description         string
	DescriptionEmbedding []float32
	Payload             string
	SuccessScore        float64
}

// Episode is a cached, reusable trace of a successful agent run.
type Episode struct {
	Query             string
	QueryEmbedding    []float32
	Actions           []Action
	Success           bool
	Confidence        float64
	Iterations        int
	Elapsed           time.Duration
	RetrievedDocCount int
	ReuseCount        int
	Timestamp         time.Time
}

// SpeculativeResult is the output of the fast path, and the optional
// seed handed to the agent graph.
type SpeculativeResult struct {
	Response        string
	Sources         []SourceChunk
	ConfidenceScore float64
}

// ReflectionDecision enumerates the outcomes of the reflect node.
type ReflectionDecision string

const (
	ReflectContinue   ReflectionDecision = "continue"
	ReflectSynthesize ReflectionDecision = "synthesize"
	ReflectEnd        ReflectionDecision = "end"
)

// AgentState is the transient state threaded through the agent graph
// for a single Query in the slow path. Every node is a pure function
// AgentState -> AgentState plus an effect channel (the Step emitter).
type AgentState struct {
	Query              string
	SessionID          string
	TopK               int
	PlanningSteps      []string
	ActionHistory      []ActionResult
	RetrievedDocs      []SourceChunk
	ReasoningSteps     []Step
	MemoryContext      string
	WorkingMemory      map[string]any
	CurrentAction      *Action
	ReflectionDecision ReflectionDecision
	FinalResponse      string
	Err                error
	SpeculativeHint    *SpeculativeResult
	MaxIterations      int
}

// DedupRetrieved merges newDocs into existing, deduplicating by ChunkID and
// keeping the higher score on collision.
func DedupRetrieved(existing []SourceChunk, newDocs ...SourceChunk) []SourceChunk {
	idx := make(map[string]int, len(existing))
	out := make([]SourceChunk, len(existing))
	copy(out, existing)
	for i, c := range out {
		idx[c.ChunkID] = i
	}
	for _, c := range newDocs {
		if i, ok := idx[c.ChunkID]; ok {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		idx[c.ChunkID] = len(out)
		out = append(out, c)
	}
	return out
}
