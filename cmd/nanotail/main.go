package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coffersTech/nanotail/internal/client"
	"github.com/coffersTech/nanotail/internal/export"
	"github.com/coffersTech/nanotail/internal/normalize"
	"github.com/coffersTech/nanotail/internal/store"
	"github.com/coffersTech/nanotail/internal/view"
)

func main() {
	url := flag.String("url", client.DefaultEndpoint, "WebSocket URL of the log source")
	level := flag.String("level", view.FilterAll, "Initial level filter (e.g. ERROR, WARN, ALL)")
	queryStr := flag.String("q", "", `Search expression (e.g. 'level:error AND "timeout"')`)
	maxRecords := flag.Int("max", 0, "Cap on retained records (0 = unbounded)")
	exportPath := flag.String("export", "", "Write a snapshot file on exit")
	delayStr := flag.String("delay", "3s", "Reconnect delay after a dropped connection")
	verbose := flag.Bool("v", false, "Trace connection and frame diagnostics")
	flag.Parse()

	delay, err := time.ParseDuration(*delayStr)
	if err != nil {
		log.Fatalf("Invalid reconnect delay: %v", err)
	}

	log.Println("NanoTail v0.1 Started...")

	// 1. Store, normalizer, and view
	st := store.New()
	st.MaxRecords = *maxRecords
	norm := normalize.New(st)
	vw := view.New(st)
	vw.SetFilter(*level)
	if err := vw.SetQuery(*queryStr); err != nil {
		log.Fatalf("Invalid query: %v", err)
	}

	var trace *log.Logger
	if *verbose {
		trace = log.New(os.Stderr, "nanotail: ", log.LstdFlags)
		norm.Trace = trace
	}

	// 2. Connection manager
	mgr := client.New(client.Options{
		URL:            *url,
		ReconnectDelay: delay,
		Trace:          trace,
	}, func(frame []byte) {
		norm.Frame(frame)
	})
	mgr.Connect()
	log.Printf("Tailing %s (filter: %s)", *url, vw.Filter())

	// 3. Print newly visible records until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var printed int64
	lastStatus := ""
	for running := true; running; {
		select {
		case <-ticker.C:
			snap := vw.Snapshot(mgr.Status())
			if snap.Status != lastStatus {
				log.Printf("Connection: %s", snap.Status)
				lastStatus = snap.Status
			}
			// A clear (or a shorter history snapshot) restarts numbering.
			if n := len(snap.Records); n == 0 || snap.Records[n-1].Line < printed {
				printed = 0
			}
			for _, r := range snap.Records {
				if r.Line <= printed {
					continue
				}
				fmt.Printf("[%5d] %-8s %-7s %s\n", r.Line, r.Timestamp, r.Level, r.Message)
				printed = r.Line
			}

		case sig := <-quit:
			log.Printf("Received signal: %v. Shutting down...", sig)
			running = false
		}
	}

	mgr.Teardown()

	if *exportPath != "" {
		if err := writeSnapshotFile(*exportPath, st); err != nil {
			log.Printf("Snapshot export failed: %v", err)
		} else {
			log.Printf("Snapshot written to %s (%d records)", *exportPath, st.Len())
		}
	}

	log.Println("NanoTail exited gracefully.")
}

func writeSnapshotFile(path string, st *store.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WriteSnapshot(f, st.Snapshot()); err != nil {
		return err
	}
	return f.Sync()
}
