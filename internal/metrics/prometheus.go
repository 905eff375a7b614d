package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_ingest_total",
			Help: "Total documents ingested",
		},
		[]string{"category", "status"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	ChunksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_chunks_created_total",
			Help: "Total chunks created by ingestion",
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_search_total",
			Help: "Total similarity searches",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_search_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_search_results_count",
			Help:    "Number of results per search",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	RetrievalFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_retrieval_fallbacks_total",
			Help: "Total broadened retrieval retries",
		},
	)

	EmbeddingTokensUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_embedding_tokens_total",
			Help: "Total embedding tokens consumed",
		},
	)

	DocumentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "knowledge_documents_total",
			Help: "Documents currently in the knowledge base",
		},
	)
)

func Init() {
	prometheus.MustRegister(IngestTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ChunksCreated)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResultsCount)
	prometheus.MustRegister(RetrievalFallbacks)
	prometheus.MustRegister(EmbeddingTokensUsed)
	prometheus.MustRegister(DocumentsTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
