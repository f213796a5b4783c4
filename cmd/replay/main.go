// Reads the compressed broadcast logs a server wrote and prints them back,
// optionally filtered by event type. Handy for reconstructing what the
// network did overnight.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

func main() {
	var (
		eventsDir = flag.String("events", "./data/events", "events dir containing events-*.jsonl.zst")
		typ       = flag.String("type", "", "only print events of this type")
		summary   = flag.Bool("summary", false, "print per-type counts instead of events")
	)
	flag.Parse()

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event files found in", *eventsDir)
		os.Exit(1)
	}

	counts := map[string]int{}
	total := 0
	for _, path := range files {
		if err := readFile(path, func(line []byte) {
			var ev map[string]any
			if err := json.Unmarshal(line, &ev); err != nil {
				return
			}
			t, _ := ev["type"].(string)
			counts[t]++
			total++
			if *summary {
				return
			}
			if *typ != "" && t != *typ {
				return
			}
			os.Stdout.Write(line)
			os.Stdout.Write([]byte("\n"))
		}); err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}

	if *summary {
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("%-20s %d\n", t, counts[t])
		}
		fmt.Printf("%-20s %d\n", "total", total)
	}
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readFile(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return sc.Err()
}
