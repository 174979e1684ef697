package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ragengine/internal/agentgraph"
	"ragengine/internal/backends"
	"ragengine/internal/config"
	"ragengine/internal/embedgw"
	"ragengine/internal/engine"
	"ragengine/internal/llmprovider"
	"ragengine/internal/memory/episodic"
	"ragengine/internal/memory/ltm"
	"ragengine/internal/memory/stm"
	"ragengine/internal/model"
	"ragengine/internal/observation"
	"ragengine/internal/observability"
	"ragengine/internal/quality"
	"ragengine/internal/rerank"
	"ragengine/internal/retrieve"
	"ragengine/internal/speculative"
	"ragengine/internal/tools"
)

func main() {
	// Load environment from .env (or fallback to example.env) so local
	// development can run without exporting variables manually. Do this
	// before initializing the logger so LOG_PATH/LOG_LEVEL are respected.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load(os.Getenv("RAGENGINE_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})
	mux.HandleFunc("/query", handleQuery(eng))

	log.Info().Str("addr", cfg.Server.Addr).Msg("ragengine listening")
	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// buildEngine wires every configured component into one Engine: embedding gateway, retrieval backends, adaptive
// reranker, STM/LTM/episodic memory, the speculative and agent-graph
// paths, and the quality monitor.
func buildEngine(cfg config.Config) (*engine.Engine, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	gw := embedgw.New(embedder, cfg.Embedding.CacheSize)

	vector, err := buildVectorBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("build vector backend: %w", err)
	}
	lexical, err := buildLexicalBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("build lexical backend: %w", err)
	}

	retriever := &retrieve.Service{
		Lexical:       lexical,
		Vector:        vector,
		Image:         backends.NewMemoryImage(),
		Table:         backends.NewMemoryTable(),
		Embedder:      gw,
		MultiEmbedder: embedgw.NewWindowMulti(gw, 0, 0),
	}

	llm := buildLLM(cfg)

	korean := rerank.CrossEncoder(nil)
	multi := rerank.CrossEncoder(nil)
	if cfg.RerankURL != "" {
		httpClient := observability.NewHTTPClient()
		korean = rerank.NewHTTPCrossEncoder(httpClient, cfg.RerankURL, cfg.Rerank.KoreanModelID)
		multi = rerank.NewHTTPCrossEncoder(httpClient, cfg.RerankURL, cfg.Rerank.MultilingualModelID)
	}
	reranker := rerank.New(rerank.Config{
		KoreanModelID:       cfg.Rerank.KoreanModelID,
		MultilingualModelID: cfg.Rerank.MultilingualModelID,
		FP16:                cfg.Rerank.FP16,
		INT8:                cfg.Rerank.INT8,
		CacheSize:           cfg.Rerank.CacheSize,
		EarlyStopThreshold:  cfg.Rerank.EarlyStopThreshold,
	}, korean, multi)

	obs := observation.New(observation.Config{Threshold: cfg.Memory.LTMSimilarityThreshold, MaxSummaryLength: 1000}, gw)

	spec := speculative.New(retriever, obs, llm)
	spec.Embedder = gw

	graph := agentgraph.New(agentgraph.Config{
		MaxIterations:        cfg.Agent.MaxIterations,
		LTMMinSuccessScore:   cfg.Memory.LTMSimilarityThreshold,
		MinEpisodeConfidence: cfg.Memory.EpisodeMinConfidence,
	})
	graph.Retriever = retriever
	graph.Reranker = reranker
	graph.Observer = obs
	graph.Embedder = gw
	graph.LLM = llm

	if cfg.SearXNGURL != "" {
		graph.Web = tools.NewSearXNGWeb(observability.NewHTTPClient(), cfg.SearXNGURL)
	}
	if cfg.LocalDataRoot != "" {
		graph.Local = tools.NewLocalFileBackend(cfg.LocalDataRoot)
	}

	if cfg.RedisAddr != "" {
		kv, err := stm.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without short-term memory")
		} else {
			store := stm.New(kv, stm.Config{TTL: cfg.STMTTL()})
			graph.STM = store
			spec.STM = store
		}
	}

	if cfg.QdrantDSN != "" {
		ltmStore, err := ltm.New(cfg.QdrantDSN, cfg.QdrantCollection+"_interactions")
		if err != nil {
			log.Warn().Err(err).Msg("qdrant unavailable, running without long-term memory")
		} else {
			graph.LTM = ltmStore
			spec.LTM = ltmStore
		}
	}

	graph.Episodic = episodic.New(episodic.DefaultConfig(), nil)

	q := quality.New(quality.Config{WindowSize: cfg.Quality.WindowSize})

	return engine.New(spec, graph, q, cfg), nil
}

func buildEmbedder(cfg config.Config) (embedgw.Embedder, error) {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "openai":
		return embedgw.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dim), nil
	default:
		return embedgw.NewDeterministic(cfg.Embedding.Dim, true, 0), nil
	}
}

func buildVectorBackend(cfg config.Config) (backends.VectorBackend, error) {
	if cfg.QdrantDSN == "" {
		return backends.NewMemoryVector(), nil
	}
	return backends.NewQdrantVector(cfg.QdrantDSN, cfg.QdrantCollection)
}

func buildLexicalBackend(cfg config.Config) (backends.LexicalBackend, error) {
	return backends.NewBleveLexical(cfg.BleveIndexPath)
}

func buildLLM(cfg config.Config) llmprovider.Provider {
	switch strings.ToLower(cfg.LLMProvider) {
	case "openai":
		return llmprovider.NewOpenAI(cfg.OpenAIAPIKey, "", cfg.LLMModel)
	default:
		return llmprovider.NewAnthropic(cfg.AnthropicAPIKey, "", cfg.LLMModel)
	}
}

// handleQuery runs a single query through the engine and streams its
// Step Stream back as newline-delimited JSON, one Step per line.
func handleQuery(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Query     string                 `json:"query"`
			SessionID string                 `json:"session_id"`
			TopK      int                    `json:"top_k"`
			Hint      *model.SpeculativeResult `json:"hint,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.TopK == 0 {
			req.TopK = 10
		}

		stream, err := eng.ProcessQuery(r.Context(), req.Query, req.SessionID, req.TopK, req.Hint)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		fl, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for {
			step, ok := stream.Next()
			if !ok {
				return
			}
			if err := enc.Encode(step); err != nil {
				return
			}
			if fl != nil {
				fl.Flush()
			}
		}
	}
}
