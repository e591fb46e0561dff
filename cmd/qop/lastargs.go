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
	"encoding/json"
	"os"
	"path/filepath"
)

// lastArgs is the cached shape of the most recent copy/move/convert
// invocation, replayed by "qop re" the way original_source/qop/cli.py
// pickles args.paths for its own re command.
type lastArgs struct {
	Mode        string   `json:"mode"`
	Paths       []string `json:"paths"`
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	EnqueueOnly bool     `json:"enqueue_only"`

	ConvertOnly []string `json:"convert_only,omitempty"`
	ConvertNot  []string `json:"convert_not,omitempty"`
	ConvertNone bool     `json:"convert_none,omitempty"`
	RemoveArt   bool     `json:"remove_art,omitempty"`
	Format      string   `json:"format,omitempty"`
	Codec       string   `json:"codec,omitempty"`
	Bitrate     string   `json:"bitrate,omitempty"`
}

func lastArgsPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "qop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "last_args.json"), nil
}

func saveLastArgs(a lastArgs) error {
	path, err := lastArgsPath()
	if err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadLastArgs() (lastArgs, error) {
	path, err := lastArgsPath()
	if err != nil {
		return lastArgs{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lastArgs{}, err
	}
	var a lastArgs
	if err := json.Unmarshal(data, &a); err != nil {
		return lastArgs{}, err
	}
	return a, nil
}
