// Package relay forwards a fragment sequence to an HTTP client as a
// chunked plain-text body, flushing after every fragment.
package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// Source yields fragments in order. Next reports ok == false once the
// sequence ended; Close releases the upstream side.
type Source interface {
	Next() (fragment string, ok bool)
	Close() error
}

// ErrClientGone is returned when the client stopped reading before the
// source was exhausted.
var ErrClientGone = errors.New("client disconnected")

// Relay commits a 200 text response and copies src into w until src ends,
// ctx is done or a write fails. src is always closed, which cancels the
// upstream call when the relay stopped early.
func Relay(ctx context.Context, w http.ResponseWriter, src Source) error {
	defer src.Close()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		if ctx.Err() != nil {
			return ErrClientGone
		}

		frag, ok := src.Next()
		if !ok {
			return nil
		}
		if frag == "" {
			continue
		}

		if _, err := io.WriteString(w, frag); err != nil {
			return errors.Join(ErrClientGone, err)
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return errors.Join(ErrClientGone, err)
		}
	}
}
