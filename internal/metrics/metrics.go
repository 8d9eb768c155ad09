// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompressPacketsTotal counts packets compressed, by rule id and outcome
	// (matched or fallback).
	CompressPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_compress_packets_total",
			Help: "Total number of packets compressed",
		},
		[]string{"rule", "outcome"},
	)

	// CompressErrorsTotal counts compression failures by reason
	CompressErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_compress_errors_total",
			Help: "Total number of compression failures",
		},
		[]string{"reason"},
	)

	// DecompressPacketsTotal counts packets decompressed by rule id
	DecompressPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_decompress_packets_total",
			Help: "Total number of packets decompressed",
		},
		[]string{"rule"},
	)

	// DecompressErrorsTotal counts decompression failures by reason
	DecompressErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_decompress_errors_total",
			Help: "Total number of decompression failures",
		},
		[]string{"reason"},
	)

	// SavedBitsTotal accumulates header bits elided by compression
	SavedBitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schc_saved_bits_total",
			Help: "Total number of bits saved by compression",
		},
	)

	// CompressionRatio observes the per-packet compressed/original size ratio
	CompressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schc_compression_ratio",
			Help:    "Ratio of compressed packet size to original packet size",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
		},
	)

	// CapturePacketsTotal counts packets read from a capture source
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_capture_packets_total",
			Help: "Total number of packets read from the capture source",
		},
		[]string{"source"},
	)

	// CaptureDropsTotal counts packets the parser rejected
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_capture_drops_total",
			Help: "Total number of captured packets dropped before compression",
		},
		[]string{"source", "reason"},
	)
)
