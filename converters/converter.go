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

// Package converters implements the core's Converter collaborator: an
// opaque, pluggable "bytes in, bytes out" file transform used by convert
// tasks. The actual transcoding backend (ffmpeg) is treated as a black box;
// this package only defines the contract and the two concrete converters
// qop ships with.
package converters

import (
	"encoding/json"
	"fmt"
)

// Kind tags a Converter variant for (de)serialization, mirroring the
// numeric `type` discriminant used by the wire protocol's task payloads.
type Kind int

const (
	KindCopy Kind = iota + 1
	KindPydub
)

// Converter transforms one file into another. The core treats the
// transform as opaque; it only relies on Run being blocking and CPU-bound,
// and on Extension to know how to rewrite a destination's suffix.
type Converter interface {
	// Run performs the transform, writing dst from src. It may create
	// missing parent directories of dst. A partially-written dst on
	// failure is tolerated by the core (the task is reported FAIL and the
	// queue row stays terminal); Run is not required to clean up after
	// itself.
	Run(src, dst string) error

	// Extension returns the file extension (without a leading dot) that
	// this converter's output should carry.
	Extension() string

	// Kind identifies the concrete variant for serialization.
	Kind() Kind
}

// TagCopier transfers metadata tags (e.g. ID3, Vorbis comments) from a
// source file to a converted destination file. The actual tag library is
// out of scope; NopTagCopier is the default, doing nothing.
type TagCopier interface {
	CopyTags(src, dst string) error
}

// NopTagCopier is a TagCopier that does nothing. It is the default used by
// Pydub when no tag copier is configured.
type NopTagCopier struct{}

// CopyTags implements TagCopier by doing nothing.
func (NopTagCopier) CopyTags(src, dst string) error { return nil }

type wireConverter struct {
	Type           Kind   `json:"type"`
	Format         string `json:"format,omitempty"`
	Codec          string `json:"codec,omitempty"`
	Bitrate        string `json:"bitrate,omitempty"`
	ExtraArgs      string `json:"extra_args,omitempty"`
	ID3Version     string `json:"id3v2_version,omitempty"`
	RemoveAlbumArt bool   `json:"remove_album_art,omitempty"`
}

// Marshal serializes a Converter to its wire representation.
func Marshal(c Converter) ([]byte, error) {
	switch v := c.(type) {
	case Copy:
		return json.Marshal(wireConverter{Type: KindCopy})
	case Pydub:
		return json.Marshal(wireConverter{
			Type:           KindPydub,
			Format:         v.Format,
			Codec:          v.Codec,
			Bitrate:        v.Bitrate,
			ExtraArgs:      v.ExtraArgs,
			ID3Version:     v.ID3Version,
			RemoveAlbumArt: v.RemoveAlbumArt,
		})
	default:
		return nil, fmt.Errorf("converters: unknown converter type %T", c)
	}
}

// Unmarshal reconstructs a Converter from its wire representation.
func Unmarshal(data []byte) (Converter, error) {
	var w wireConverter
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("converters: decoding converter: %w", err)
	}
	switch w.Type {
	case KindCopy:
		return Copy{}, nil
	case KindPydub:
		return Pydub{
			Format:         w.Format,
			Codec:          w.Codec,
			Bitrate:        w.Bitrate,
			ExtraArgs:      w.ExtraArgs,
			ID3Version:     w.ID3Version,
			RemoveAlbumArt: w.RemoveAlbumArt,
		}, nil
	default:
		return nil, fmt.Errorf("converters: unknown converter type tag %d", w.Type)
	}
}
