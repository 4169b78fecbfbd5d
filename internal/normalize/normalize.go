// Package normalize turns raw inbound frames into store mutations.
//
// A frame is classified by a fixed precedence chain: history batch,
// fully structured record, typed log record, loose message object, and
// finally the unrecognized no-op. Frames that do not decode at all are
// wrapped verbatim as unstructured records rather than dropped, so an
// operator still sees plain-text output from sources that never speak
// JSON.
package normalize

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanotail/internal/model"
	"github.com/coffersTech/nanotail/internal/store"
)

// Normalizer classifies frames and applies the resulting records to the
// store. It is driven from the connection manager's event loop, so a
// frame's mutations are applied atomically relative to other frames.
type Normalizer struct {
	store   *store.Store
	parsers fastjson.ParserPool

	// Trace receives diagnostics for unrecognized frames. Nil disables
	// tracing.
	Trace *log.Logger

	// Now supplies wall-clock timestamps for records that carry none.
	// Defaults to time.Now.
	Now func() time.Time
}

func New(s *store.Store) *Normalizer {
	return &Normalizer{store: s}
}

// Frame classifies one raw frame and returns how many records it
// produced. It never fails: undecodable input falls back to a verbatim
// record and unrecognized shapes are silently skipped.
func (n *Normalizer) Frame(data []byte) int {
	p := n.parsers.Get()
	defer n.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		// Not JSON. Surface the raw text as a single unstructured record.
		n.store.Append(model.Record{
			ID:        uuid.New().String(),
			Timestamp: n.clock(),
			Level:     model.LevelInfo,
			Message:   string(data),
		})
		return 1
	}

	if string(v.GetStringBytes("type")) == "HISTORY" {
		return n.history(v)
	}

	if v.Exists("timestamp") && v.Exists("level") && v.Exists("message") {
		n.store.Append(model.Record{
			ID:         uuid.New().String(),
			Timestamp:  string(v.GetStringBytes("timestamp")),
			Level:      string(v.GetStringBytes("level")),
			Message:    messageText(v),
			Structured: structuredFlag(v, true),
		})
		return 1
	}

	if string(v.GetStringBytes("type")) == "log" || v.Exists("message") {
		n.store.Append(n.looseRecord(v))
		return 1
	}

	if n.Trace != nil {
		n.Trace.Printf("normalize: unrecognized frame skipped: %s", data)
	}
	return 0
}

// history applies a batch replace. The payload is either an ordered
// array of pre-shaped entries or one newline-delimited string; blank
// lines are discarded. The batch is numbered from the current counter,
// which keeps climbing: only an explicit clear resets it.
func (n *Normalizer) history(v *fastjson.Value) int {
	base := n.store.Line()
	var batch []model.Record

	payload := v.Get("data")
	switch {
	case payload == nil:
		// Empty snapshot: the source has no recent output.
	case payload.Type() == fastjson.TypeArray:
		entries, _ := payload.Array()
		for _, e := range entries {
			batch = append(batch, n.historyEntry(e))
		}
	default:
		for _, line := range strings.Split(string(payload.GetStringBytes()), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			batch = append(batch, model.Record{
				ID:          uuid.New().String(),
				Level:       model.LevelInfo,
				Message:     line,
				Structured:  true,
				FromHistory: true,
			})
		}
	}

	for i := range batch {
		batch[i].Line = base + int64(i) + 1
	}
	n.store.Replace(batch)
	return len(batch)
}

func (n *Normalizer) historyEntry(e *fastjson.Value) model.Record {
	if e.Type() == fastjson.TypeString {
		return model.Record{
			ID:          uuid.New().String(),
			Level:       model.LevelInfo,
			Message:     string(e.GetStringBytes()),
			Structured:  true,
			FromHistory: true,
		}
	}

	level := model.LevelInfo
	if e.Exists("level") {
		level = string(e.GetStringBytes("level"))
	}
	return model.Record{
		ID:          uuid.New().String(),
		Timestamp:   string(e.GetStringBytes("timestamp")),
		Level:       level,
		Message:     messageText(e),
		Structured:  structuredFlag(e, true),
		FromHistory: true,
	}
}

// looseRecord covers the `type:"log"` shape and the bare-message
// catch-all: a missing field gets a default, a present one is taken as
// sent, even when empty.
func (n *Normalizer) looseRecord(v *fastjson.Value) model.Record {
	ts := n.clock()
	if v.Exists("timestamp") {
		ts = string(v.GetStringBytes("timestamp"))
	}
	level := model.LevelInfo
	if v.Exists("level") {
		level = string(v.GetStringBytes("level"))
	}
	msg := messageText(v)
	if !v.Exists("message") {
		msg = v.String()
	}
	return model.Record{
		ID:         uuid.New().String(),
		Timestamp:  ts,
		Level:      level,
		Message:    msg,
		Structured: true,
	}
}

func (n *Normalizer) clock() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return now().Format("15:04:05")
}

// messageText reads the message field as text. Non-string payloads are
// rendered back to their JSON form instead of being discarded.
func messageText(v *fastjson.Value) string {
	m := v.Get("message")
	if m == nil {
		return ""
	}
	if m.Type() == fastjson.TypeString {
		return string(m.GetStringBytes())
	}
	return m.String()
}

func structuredFlag(v *fastjson.Value, def bool) bool {
	if v.Exists("isStructured") {
		return v.GetBool("isStructured")
	}
	return def
}
