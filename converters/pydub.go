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

package converters

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Pydub transcodes audio files by shelling out to ffmpeg, the way the
// original qop used the Python pydub library (itself a thin ffmpeg
// wrapper). The name is kept from the source project to make the lineage
// obvious; there is no Python involved here.
type Pydub struct {
	// Format is the output container/codec family, e.g. "mp3" or "ogg".
	Format string
	// Codec, if set, is passed to ffmpeg's -acodec flag.
	Codec string
	// Bitrate, if set, is passed to ffmpeg's -b:a flag (e.g. "192k").
	Bitrate string
	// ExtraArgs holds additional whitespace-separated ffmpeg arguments
	// inserted before the output path.
	ExtraArgs string
	// ID3Version, if set (e.g. "3" or "4"), is passed as -id3v2_version.
	ID3Version string
	// RemoveAlbumArt strips embedded cover art from the output.
	RemoveAlbumArt bool
	// TagCopier transfers tags after a successful transcode. Defaults to
	// NopTagCopier when nil.
	TagCopier TagCopier
	// FFmpegPath overrides the ffmpeg binary looked up on PATH, mainly for
	// tests.
	FFmpegPath string
}

// Run invokes ffmpeg to transcode src into dst according to the
// converter's configured format/codec/bitrate, then (if configured)
// copies tags from src to dst.
func (p Pydub) Run(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	bin := p.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{"-y", "-i", src}
	if p.Codec != "" {
		args = append(args, "-acodec", p.Codec)
	}
	if p.Bitrate != "" {
		args = append(args, "-b:a", p.Bitrate)
	}
	if p.ID3Version != "" {
		args = append(args, "-id3v2_version", p.ID3Version)
	}
	if p.RemoveAlbumArt {
		args = append(args, "-vn")
	}
	if p.ExtraArgs != "" {
		args = append(args, strings.Fields(p.ExtraArgs)...)
	}
	args = append(args, dst)

	cmd := exec.Command(bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("converters: ffmpeg failed converting %s -> %s: %w: %s", src, dst, err, out)
	}

	tagCopier := p.TagCopier
	if tagCopier == nil {
		tagCopier = NopTagCopier{}
	}
	return tagCopier.CopyTags(src, dst)
}

// Extension returns the output file extension implied by Format.
func (p Pydub) Extension() string {
	return p.Format
}

// Kind identifies this converter for serialization.
func (Pydub) Kind() Kind { return KindPydub }
