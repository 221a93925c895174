package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// dataStream writes the line-oriented data stream protocol used by
// `POST /chat/{mode}`: `0:` text parts, `3:` error parts and a closing `d:`
// part carrying the finish reason.
type dataStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newDataStream(w http.ResponseWriter) *dataStream {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	w.WriteHeader(http.StatusOK)
	return &dataStream{w: w, rc: http.NewResponseController(w)}
}

func (d *dataStream) part(code byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(d.w, "%c:%s\n", code, b); err != nil {
		return err
	}
	if err := d.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (d *dataStream) text(s string) error { return d.part('0', s) }

func (d *dataStream) error(msg string) error { return d.part('3', msg) }

func (d *dataStream) finish(reason string) error {
	return d.part('d', map[string]string{"finishReason": reason})
}
