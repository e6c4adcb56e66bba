package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"analyzer-api/internal/shared"

	"go.uber.org/zap"
)

const unavailableMessage = "Downstream service is unavailable."

// EmitFunc delivers one frame to the original caller. A non-nil error means
// the caller is gone and no further frames can be delivered.
type EmitFunc func(frame []byte) error

// RelayStats summarizes one relayed stream for logging and metrics. The
// relay itself never surfaces an error to its caller; every downstream
// failure becomes a single terminal in-band error frame.
type RelayStats struct {
	Chunks           int
	ErrorEmitted     bool
	TimeToFirstChunk time.Duration
}

// ErrorFrame builds the in-band SSE error frame.
func ErrorFrame(message string) []byte {
	payload, _ := json.Marshal(shared.StreamError{Type: "error", Message: message})
	return fmt.Appendf(nil, "data: %s\n\n", payload)
}

// Relay drains handle into emit. Chunks are forwarded verbatim in arrival
// order. If the downstream response carries an error status, its body is
// read once while the transport is still open and converted into a single
// error frame; no data frames are emitted in that case. A transport failure
// before or during relaying emits a single unavailability frame. At most one
// error frame is ever emitted per stream, and it is always the last frame.
//
// ctx is the original caller's request context: when it is canceled the
// relay stops pulling without emitting anything further.
func Relay(ctx context.Context, handle *StreamHandle, emit EmitFunc, log *zap.SugaredLogger) RelayStats {
	stats := RelayStats{}
	start := time.Now()
	defer handle.Close()

	if handle.StatusCode >= 400 {
		body, err := handle.ErrorBody()
		if err != nil {
			log.Errorw("Failed reading agent error body", "status", handle.StatusCode, "error", err)
			stats.ErrorEmitted = emit(ErrorFrame(unavailableMessage)) == nil
			return stats
		}
		log.Errorw("Agent returned a streaming error",
			"downstream_status", handle.StatusCode,
			"downstream_response", string(body),
		)
		stats.ErrorEmitted = emit(ErrorFrame("Downstream error: "+string(body))) == nil
		return stats
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := handle.Next(buf)
		if n > 0 {
			if stats.Chunks == 0 {
				stats.TimeToFirstChunk = time.Since(start)
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if emitErr := emit(frame); emitErr != nil {
				log.Debugw("Caller disconnected mid-stream", "chunks_relayed", stats.Chunks)
				return stats
			}
			stats.Chunks++
		}
		if err == io.EOF {
			return stats
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				log.Debugw("Caller canceled stream", "chunks_relayed", stats.Chunks)
				return stats
			}
			log.Errorw("Streaming request to agent failed", "error", err, "chunks_relayed", stats.Chunks)
			stats.ErrorEmitted = emit(ErrorFrame(unavailableMessage)) == nil
			return stats
		}
	}
}
