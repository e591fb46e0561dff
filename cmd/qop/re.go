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

	"github.com/spf13/cobra"
)

var reDestination string

var reCmd = &cobra.Command{
	Use:   "re [SOURCE...] [DESTINATION]",
	Short: "Replay the most recent copy/move/convert invocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		last, err := loadLastArgs()
		if err != nil {
			return fmt.Errorf("qop: no previous invocation to replay: %w", err)
		}

		switch {
		case reDestination != "":
			last.Paths = append(args, reDestination)
		case len(args) > 0:
			last.Paths = append(args, last.Paths[len(last.Paths)-1])
		}

		convertInclude, convertExclude = last.Include, last.Exclude
		convertOnly, convertNot, convertNone, convertRemoveArt = last.ConvertOnly, last.ConvertNot, last.ConvertNone, last.RemoveArt
		convertFormat, convertCodec, convertBitrate = last.Format, last.Codec, last.Bitrate
		convertEnqueueOnly = last.EnqueueOnly

		if last.Mode == "convert" {
			return runConvert(last.Paths)
		}
		return runCopyMove(last.Mode, last.Paths, last.Include, last.Exclude, last.EnqueueOnly, true)
	},
}

func init() {
	reCmd.Flags().StringVar(&reDestination, "destination", "", "override the previous invocation's destination")
	rootCmd.AddCommand(reCmd)
}
