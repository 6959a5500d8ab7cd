// Package metrics holds the prometheus collectors for the ingestion
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadArchiveSeconds times the whole ingestion request.
	UploadArchiveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "symdex_upload_archive_seconds",
		Help:    "Time spent handling one archive ingestion request.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// StoreSeconds times the staging write, labelled by staging mode.
	StoreSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "symdex_store_seconds",
		Help:    "Time spent persisting an archive's raw bytes.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"mode"})

	// RejectionsTotal counts client-caused rejections.
	RejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "symdex_upload_rejections_total",
		Help: "Archive ingestion requests rejected by validation.",
	})

	// DispatchesTotal counts downstream processing dispatches, labelled by
	// whether the dispatch was a first attempt or a reattempt.
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symdex_upload_dispatches_total",
		Help: "Downstream processing dispatches issued.",
	}, []string{"kind"})
)
