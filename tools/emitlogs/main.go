// emitlogs is a development log source for exercising nanotail: it
// serves a WebSocket endpoint that replays a history snapshot on
// connect and then emits one frame of every shape nanotail understands,
// including deliberately malformed ones.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":9280", "Listen address")
	interval := flag.Duration("interval", 500*time.Millisecond, "Delay between frames")
	flag.Parse()

	http.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Upgrade failed: %v", err)
			return
		}
		log.Printf("Client connected: %s", r.RemoteAddr)
		go emit(conn, *interval)
	})

	log.Printf("emitlogs listening on ws://%s/logs", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("Listen failed: %v", err)
	}
}

func emit(conn *websocket.Conn, interval time.Duration) {
	defer conn.Close()

	history := `{"type":"HISTORY","data":"service booting\nconfig loaded\n\nlisteners ready"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(history)); err != nil {
		return
	}

	frames := []string{
		`{"timestamp":"%s","level":"INFO","message":"request handled in 12ms"}`,
		`{"timestamp":"%s","level":"ERROR","message":"upstream timeout","isStructured":true}`,
		`{"type":"log","message":"worker heartbeat"}`,
		`{"type":"log","level":"WARN","message":"queue depth rising"}`,
		`{"message":"loose frame without type"}`,
		`{"timestamp":"%s","level":"SUCCESS","message":"batch committed"}`,
		`plain text line, not JSON at all`,
		`{"type":"noise","payload":42}`,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		<-ticker.C
		frame := frames[i%len(frames)]
		if strings.Contains(frame, "%s") {
			frame = fmt.Sprintf(frame, time.Now().Format("15:04:05"))
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			log.Printf("Client gone: %v", err)
			return
		}
	}
}
