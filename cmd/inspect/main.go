// Command inspect dumps the raw key space of a historydb pebble database.
// Useful for debugging topic/message/block/setting records on disk.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
)

func main() {
	var (
		path   string
		prefix string
		values bool
	)
	flag.StringVar(&path, "path", "", "pebble database path")
	flag.StringVar(&prefix, "prefix", "", "only keys with this prefix (e.g. topic:, msg:, blk:, setting:)")
	flag.BoolVar(&values, "values", false, "print JSON values as well")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}

	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer db.Close()

	iter, err := db.NewIter(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterator: %v\n", err)
		os.Exit(1)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		if values {
			fmt.Printf("%s\t%s\n", k, iter.Value())
		} else {
			fmt.Println(k)
		}
		n++
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", n)
}
