package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "historydb_store_reads_total",
		Help: "Durable store read operations by entity.",
	}, []string{"entity"})
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "historydb_store_writes_total",
		Help: "Durable store write operations by entity.",
	}, []string{"entity"})
	txnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historydb_store_txns_total",
		Help: "Transactions started.",
	})
	txnFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historydb_store_txn_failures_total",
		Help: "Transactions aborted or failed to commit.",
	})
)

// DiskUsageBytes returns the best-effort on-disk size of the database
// directory, for the admin stats endpoint.
func (s *Store) DiskUsageBytes() uint64 {
	if s == nil || s.path == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
