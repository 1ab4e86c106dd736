// Package telemetry provides minimal, low-overhead request telemetry.
// By default only slow requests are logged; full traces are written to a
// JSONL sink for a small sampled fraction of requests.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"historydb/pkg/logger"
)

var (
	writerOnce sync.Once
	writerCh   chan []byte
	requestCtr uint64

	sinkDir       string
	sampleEvery   uint64 = 1000 // 1 in N requests gets a trace record
	slowThreshold        = 200 * time.Millisecond
)

// Record is one request's telemetry line in the JSONL sink.
type Record struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Duration  int64  `json:"duration_ms"`
	Time      string `json:"time"`
}

// SetSink points the JSONL writer at dir. Must be called before the first
// sampled request; later calls are ignored.
func SetSink(dir string) { sinkDir = dir }

func initWriter() {
	writerCh = make(chan []byte, 1024)
	go func() {
		dir := sinkDir
		if dir == "" {
			dir = filepath.Join("db", "state", "telemetry")
		}
		_ = os.MkdirAll(dir, 0o700)
		f, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for b := range writerCh {
			_, _ = f.Write(append(b, '\n'))
		}
	}()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request timing: slow requests are logged, and a sampled
// fraction is appended to the JSONL sink.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		n := atomic.AddUint64(&requestCtr, 1)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		if elapsed >= slowThreshold {
			logger.Log.Warn("slow_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("elapsed", elapsed),
			)
		}
		if sampleEvery > 0 && n%sampleEvery == 0 {
			writerOnce.Do(initWriter)
			rec := Record{
				RequestID: fmt.Sprintf("req-%d", n),
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    sw.status,
				Duration:  elapsed.Milliseconds(),
				Time:      start.UTC().Format(time.RFC3339),
			}
			if b, err := json.Marshal(rec); err == nil {
				select {
				case writerCh <- b:
				default: // drop when the writer is backed up
				}
			}
		}
	})
}
