package nimble

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metOnce sync.Once

	metDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "nimble_sync_downloads_total", Help: "Download attempts by result"},
		[]string{"result"},
	)
	metBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "nimble_sync_bytes_total", Help: "Total bytes downloaded"},
	)
	metDownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "nimble_sync_download_duration_seconds", Help: "Time spent per file download", Buckets: prometheus.DefBuckets},
	)
	metScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "nimble_sync_scan_duration_seconds", Help: "Time spent scanning a single mod", Buckets: prometheus.DefBuckets},
	)
	metModsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "nimble_sync_mods_scanned_total", Help: "Total mods scanned"},
	)
)

func initMetrics() {
	metOnce.Do(func() {
		prometheus.MustRegister(metDownloadsTotal, metBytesTotal, metDownloadDuration, metScanDuration, metModsScanned)
	})
}

// StartMetricsServer registers the sync metrics and serves them on addr
// under /metrics until ctx is canceled. It runs in the caller's goroutine;
// callers that want a background server should invoke it via `go`.
func StartMetricsServer(ctx context.Context, addr string) error {
	initMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func observeDownload(ok bool, bytes int64, dur time.Duration) {
	initMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	metDownloadsTotal.WithLabelValues(result).Inc()
	if ok {
		metBytesTotal.Add(float64(bytes))
	}
	metDownloadDuration.Observe(dur.Seconds())
}

func observeScan(dur time.Duration) {
	initMetrics()
	metModsScanned.Inc()
	metScanDuration.Observe(dur.Seconds())
}
