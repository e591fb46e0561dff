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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/s-fleck/qop/converters"
	"github.com/s-fleck/qop/protocol"
	"github.com/s-fleck/qop/tasks"
)

var (
	convertInclude     []string
	convertExclude     []string
	convertOnly        []string
	convertNot         []string
	convertNone        bool
	convertRemoveArt   bool
	convertEnqueueOnly bool
	convertVerbose     bool
	convertFormat      string
	convertCodec       string
	convertBitrate     string
)

var convertCmd = &cobra.Command{
	Use:   "convert SOURCE... DESTINATION",
	Short: "Transcode audio files into DESTINATION, copying everything else",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(args)
	},
}

func init() {
	convertCmd.Flags().StringSliceVar(&convertInclude, "include", nil, "only scan files with these extensions")
	convertCmd.Flags().StringSliceVar(&convertExclude, "exclude", nil, "skip files with these extensions when scanning")
	convertCmd.Flags().StringSliceVar(&convertOnly, "convert-only", nil, "only transcode files with these extensions; copy the rest")
	convertCmd.Flags().StringSliceVar(&convertNot, "convert-not", nil, "transcode everything except files with these extensions")
	convertCmd.Flags().BoolVar(&convertNone, "convert-none", false, "never transcode; copy every file")
	convertCmd.Flags().BoolVar(&convertRemoveArt, "remove-art", false, "strip embedded album art from transcoded files; files that are only copied keep theirs")
	convertCmd.Flags().BoolVar(&convertEnqueueOnly, "enqueue-only", false, "enqueue tasks without starting the worker pools")
	convertCmd.Flags().BoolVarP(&convertVerbose, "verbose", "v", false, "print every enqueue response")
	convertCmd.Flags().StringVar(&convertFormat, "format", "mp3", "output container/codec family")
	convertCmd.Flags().StringVar(&convertCodec, "codec", "libmp3lame", "ffmpeg codec to transcode with")
	convertCmd.Flags().StringVar(&convertBitrate, "bitrate", "192k", "output bitrate")

	rootCmd.AddCommand(convertCmd)
}

type convertMode int

const (
	convertModeAll convertMode = iota
	convertModeInclude
	convertModeExclude
	convertModeNone
)

// runConvert mirrors original_source/qop/cli.py's handle_convert: scan for
// files, classify each as "transcode" or "pass through" according to the
// convert-only/convert-not/convert-none flags, and enqueue the
// corresponding task.
func runConvert(paths []string) error {
	sources := paths[:len(paths)-1]
	dstDir := paths[len(paths)-1]

	if err := saveLastArgs(lastArgs{
		Mode: "convert", Paths: paths, Include: convertInclude, Exclude: convertExclude,
		EnqueueOnly: convertEnqueueOnly, ConvertOnly: convertOnly, ConvertNot: convertNot,
		ConvertNone: convertNone, RemoveArt: convertRemoveArt,
		Format: convertFormat, Codec: convertCodec, Bitrate: convertBitrate,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "qop: warning: could not cache arguments for `qop re`: %s\n", err)
	}

	mode := convertModeAll
	var modeExts []string
	switch {
	case len(convertOnly) > 0:
		mode, modeExts = convertModeInclude, convertOnly
	case len(convertNot) > 0:
		mode, modeExts = convertModeExclude, convertNot
	case convertNone:
		mode = convertModeNone
	}

	conv := converters.Pydub{Format: convertFormat, Codec: convertCodec, Bitrate: convertBitrate, RemoveAlbumArt: convertRemoveArt}
	copyConv := converters.Copy{}

	files, err := scan(sources, convertInclude, convertExclude)
	if err != nil {
		return err
	}

	c := newClient()
	active, err := c.IsQueueActive()
	if err != nil {
		return fmt.Errorf("qop: checking queue state: %w", err)
	}

	for _, f := range files {
		dst, err := destPath(f, dstDir)
		if err != nil {
			return err
		}
		ext := strings.TrimPrefix(filepath.Ext(f.Path), ".")

		transcode := false
		switch mode {
		case convertModeAll:
			transcode = true
		case convertModeInclude:
			transcode = containsFold(modeExts, ext)
		case convertModeExclude:
			transcode = !containsFold(modeExts, ext)
		case convertModeNone:
			transcode = false
		}

		var task tasks.Task
		if transcode {
			dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + "." + conv.Extension()
			task = tasks.Convert{Src: f.Path, Dst: dst, TmpDst: stagingPath(dst), Converter: conv}
		} else if convertRemoveArt {
			task = tasks.SimpleConvert{Src: f.Path, Dst: dst, Converter: copyConv}
		} else {
			task = tasks.Copy{Src: f.Path, Dst: dst}
		}

		resp, err := c.PutTask(task)
		if err != nil {
			return fmt.Errorf("qop: enqueuing %s: %w", f.Path, err)
		}

		if !active && !convertEnqueueOnly {
			if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueStart}); err != nil {
				return fmt.Errorf("qop: starting queue: %w", err)
			}
			active = true
		}

		if convertVerbose {
			fmt.Println(formatResponse(resp))
		}
		printSummary(c.Stats())
	}
	fmt.Println()

	if !convertEnqueueOnly {
		if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueStart}); err != nil {
			return fmt.Errorf("qop: starting queue: %w", err)
		}
	}

	if c.Stats().Fail > 0 {
		os.Exit(1)
	}
	return nil
}

// stagingPath returns a unique temporary path for a Convert task's
// intermediate transcode output, always under os.TempDir()/qop-staging.
// It does not consult the daemon's configured staging directory.
func stagingPath(dst string) string {
	return filepath.Join(os.TempDir(), "qop-staging", uuid.NewString()+filepath.Ext(dst))
}
