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
	"os"
	"path/filepath"
	"strings"
)

// sourceFile is one file found under a source path, paired with the root
// it was found under so the caller can reconstruct its destination
// relative to that root.
type sourceFile struct {
	Root string
	Path string
}

// scan walks every path in sources, expanding directories into their
// contained files. A bare file path is returned as its own root. include
// and exclude are file extensions (without the leading dot, e.g. "mp3");
// at most one of them should be set. If both are empty every file passes.
func scan(sources []string, include, exclude []string) ([]sourceFile, error) {
	var out []sourceFile
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if matchesFilter(abs, include, exclude) {
				out = append(out, sourceFile{Root: filepath.Dir(abs), Path: abs})
			}
			continue
		}

		root := abs
		err = filepath.Walk(abs, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			if matchesFilter(path, include, exclude) {
				out = append(out, sourceFile{Root: root, Path: path})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func matchesFilter(path string, include, exclude []string) bool {
	if len(include) == 0 && len(exclude) == 0 {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if len(include) > 0 {
		return containsFold(include, ext)
	}
	return !containsFold(exclude, ext)
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// destPath computes where a scanned source file should land under dstDir,
// preserving its path relative to the root it was discovered under.
func destPath(f sourceFile, dstDir string) (string, error) {
	rel, err := filepath.Rel(f.Root, f.Path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dstDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, rel), nil
}
