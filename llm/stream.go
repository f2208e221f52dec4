// Stream assembly.
//
// Every streaming adapter runs a producer goroutine that reads its SDK
// stream and drives an Assembler. The Assembler owns the chunk channel and
// the stream lifecycle: it accumulates text, converts cumulative snapshots
// into deltas, and guarantees that a completed stream emits exactly one
// terminal chunk (IsFinal set) as its last element before the channel
// closes. After the terminal chunk nothing else is emitted, whatever the
// producer does.

package llm

import (
	"context"
	"strings"
)

// StreamMode declares how a provider reports streamed text.
type StreamMode int

const (
	// ModeDelta providers send each new text fragment on its own.
	ModeDelta StreamMode = iota
	// ModeCumulative providers resend the full text so far on every event;
	// the assembler diffs against its accumulator to recover the delta.
	ModeCumulative
)

// streamBufferSize bounds every chunk channel so a stalled consumer
// backpressures the producer instead of growing memory.
const streamBufferSize = 16

type streamState int

const (
	streamActive streamState = iota
	streamDone
)

// Assembler builds a canonical chunk stream. All methods are called by the
// single producing goroutine; the channel from Chunks is the consumer side.
type Assembler struct {
	out   chan StreamChunk
	mode  StreamMode
	model string
	acc   strings.Builder
	state streamState
}

// NewAssembler creates an assembler for one stream of the given model.
func NewAssembler(model string, mode StreamMode) *Assembler {
	return &Assembler{
		out:   make(chan StreamChunk, streamBufferSize),
		mode:  mode,
		model: model,
	}
}

// Chunks returns the consumer side of the stream.
func (a *Assembler) Chunks() <-chan StreamChunk {
	return a.out
}

// Emit delivers streamed text. In ModeDelta the text is the delta; in
// ModeCumulative it is the full snapshot and the delta is computed against
// the accumulator. Empty deltas are dropped. Emit returns false when the
// producer should stop: the consumer has gone away or the stream already
// finished.
func (a *Assembler) Emit(ctx context.Context, text string) bool {
	if a.state == streamDone {
		return false
	}
	delta := text
	if a.mode == ModeCumulative {
		// Snapshots that extend the accumulator yield their suffix;
		// anything else counts as entirely new text.
		if acc := a.acc.String(); strings.HasPrefix(text, acc) {
			delta = text[len(acc):]
		}
	}
	if delta == "" {
		return true
	}
	a.acc.WriteString(delta)
	accumulated := a.acc.String()
	chunk := StreamChunk{
		Delta:              &delta,
		AccumulatedContent: &accumulated,
		ModelName:          a.model,
	}
	select {
	case a.out <- chunk:
		return true
	case <-ctx.Done():
		a.close()
		return false
	}
}

// Finish emits the terminal chunk and closes the stream. An empty reason
// defaults to STOP, or FUNCTION_CALL when a function call is present. The
// function call is normalized before it is emitted.
func (a *Assembler) Finish(ctx context.Context, reason FinishReason, fc *FunctionCall, usage *Usage) {
	if a.state == streamDone {
		return
	}
	fc = NormalizeFunctionCall(fc)
	if reason == "" {
		reason = FinishStop
	}
	if fc != nil {
		reason = FinishFunctionCall
	}
	chunk := StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		FunctionCall: fc,
		Usage:        usage,
		ModelName:    a.model,
	}
	if a.acc.Len() > 0 {
		accumulated := a.acc.String()
		chunk.AccumulatedContent = &accumulated
	}
	a.terminate(ctx, chunk)
}

// Fail emits a terminal error chunk and closes the stream. Text already
// accumulated stays visible on the terminal chunk.
func (a *Assembler) Fail(ctx context.Context, kind ErrorKind, message string) {
	if a.state == streamDone {
		return
	}
	chunk := StreamChunk{
		Error:        true,
		IsFinal:      true,
		FinishReason: FinishError,
		ModelName:    a.model,
		Message:      message,
		Kind:         kind,
	}
	if a.acc.Len() > 0 {
		accumulated := a.acc.String()
		chunk.AccumulatedContent = &accumulated
	}
	a.terminate(ctx, chunk)
}

// Close ends the stream without a terminal chunk. It is the producer's
// deferred backstop for the cancellation path; after Finish or Fail it is a
// no-op.
func (a *Assembler) Close() {
	a.close()
}

func (a *Assembler) terminate(ctx context.Context, chunk StreamChunk) {
	select {
	case a.out <- chunk:
	case <-ctx.Done():
	}
	a.close()
}

func (a *Assembler) close() {
	if a.state == streamDone {
		return
	}
	a.state = streamDone
	close(a.out)
}
