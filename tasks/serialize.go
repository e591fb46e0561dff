// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/s-fleck/qop/converters"
)

// Marshal serializes a Task to its wire representation: a JSON object
// carrying a numeric "type" tag plus variant-specific fields.
func Marshal(t Task) ([]byte, error) {
	w := wireTask{Type: t.Kind()}

	switch v := t.(type) {
	case Echo:
		w.Msg = v.Msg
	case Sleep:
		w.Seconds = v.Seconds
	case Fail:
		// no fields
	case Delete:
		w.Src = v.Src
	case Copy:
		w.Src, w.Dst = v.Src, v.Dst
	case Move:
		w.Src, w.Dst = v.Src, v.Dst
		if v.HasParent {
			w.TmpDst = "" // parent id travels via the queue record, not the task body
		}
	case SimpleConvert:
		w.Src, w.Dst = v.Src, v.Dst
		raw, err := converters.Marshal(v.Converter)
		if err != nil {
			return nil, err
		}
		w.Converter = &converterEnvelope{Raw: raw}
	case Convert:
		w.Src, w.Dst, w.TmpDst = v.Src, v.Dst, v.TmpDst
		raw, err := converters.Marshal(v.Converter)
		if err != nil {
			return nil, err
		}
		w.Converter = &converterEnvelope{Raw: raw}
	default:
		return nil, fmt.Errorf("tasks: unknown task type %T", t)
	}

	return json.Marshal(w)
}

// Unmarshal reconstructs a Task from its wire representation. Move's
// ParentID/HasParent fields are not round-tripped through JSON: they are
// queue bookkeeping, set directly by the queue when it materializes a
// spawned follow-up task (see queue.Record.Parent).
func Unmarshal(data []byte) (Task, error) {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tasks: decoding task: %w", err)
	}

	switch w.Type {
	case KindEcho:
		return Echo{Msg: w.Msg}, nil
	case KindSleep:
		return Sleep{Seconds: w.Seconds}, nil
	case KindFail:
		return Fail{}, nil
	case KindDelete:
		return Delete{Src: w.Src}, nil
	case KindCopy:
		return Copy{Src: w.Src, Dst: w.Dst}, nil
	case KindMove:
		return Move{Src: w.Src, Dst: w.Dst}, nil
	case KindSimpleConvert:
		conv, err := converterFromEnvelope(w.Converter)
		if err != nil {
			return nil, err
		}
		return SimpleConvert{Src: w.Src, Dst: w.Dst, Converter: conv}, nil
	case KindConvert:
		conv, err := converterFromEnvelope(w.Converter)
		if err != nil {
			return nil, err
		}
		return Convert{Src: w.Src, Dst: w.Dst, TmpDst: w.TmpDst, Converter: conv}, nil
	default:
		return nil, fmt.Errorf("tasks: unknown task type tag %d", w.Type)
	}
}

func converterFromEnvelope(env *converterEnvelope) (Converter, error) {
	if env == nil {
		return nil, fmt.Errorf("tasks: convert task missing converter")
	}
	return converters.Unmarshal(env.Raw)
}
