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
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// validateSrc checks that src exists and is a file or a directory --
// the shared precondition of every file-based task.
func validateSrc(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("tasks: source %s does not exist", src)
		}
		return err
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return fmt.Errorf("tasks: source %s is neither a file nor a directory", src)
	}
	return nil
}

// filesIdentical reports whether a and b have identical contents. It is
// used to distinguish a harmless re-run (destination already matches) from
// a genuine conflict.
func filesIdentical(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.IsDir() != infoB.IsDir() {
		return false, nil
	}
	if infoA.IsDir() {
		return treesIdentical(a, b)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	const chunk = 64 * 1024
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	for {
		na, erra := fa.Read(bufA)
		nb, errb := fb.Read(bufB)
		if na != nb || string(bufA[:na]) != string(bufB[:nb]) {
			return false, nil
		}
		if erra == io.EOF && errb == io.EOF {
			return true, nil
		}
		if erra != nil && erra != io.EOF {
			return false, erra
		}
		if errb != nil && errb != io.EOF {
			return false, errb
		}
	}
}

// treesIdentical walks two directory trees and reports whether they
// contain the same relative paths with identical file contents.
func treesIdentical(a, b string) (bool, error) {
	var same = true
	err := filepath.Walk(a, func(path string, info os.FileInfo, err error) error {
		if err != nil || !same {
			return err
		}
		rel, err := filepath.Rel(a, path)
		if err != nil {
			return err
		}
		other := filepath.Join(b, rel)
		otherInfo, err := os.Stat(other)
		if err != nil {
			same = false
			return nil
		}
		if info.IsDir() != otherInfo.IsDir() {
			same = false
			return nil
		}
		if !info.IsDir() {
			ok, err := filesIdentical(path, other)
			if err != nil {
				return err
			}
			if !ok {
				same = false
			}
		}
		return nil
	})
	return same, err
}

// copyTree recursively copies src into dst, creating directories as
// needed.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Delete unlinks a file or removes an empty directory.
type Delete struct {
	Src string
}

// Kind identifies this variant for serialization.
func (Delete) Kind() Kind { return KindDelete }

// Validate checks that Src exists and is a file or directory.
func (t Delete) Validate() error { return validateSrc(t.Src) }

// Run removes Src (a file, or an empty directory).
func (t Delete) Run() error {
	if err := t.Validate(); err != nil {
		return err
	}
	return os.Remove(t.Src)
}

// Spawn never produces a follow-up task.
func (Delete) Spawn(int64) Task { return nil }

// Copy copies a file or directory tree from Src to Dst.
type Copy struct {
	Src, Dst string
}

// Kind identifies this variant for serialization.
func (Copy) Kind() Kind { return KindCopy }

// Validate checks Src's preconditions and classifies an existing Dst as
// SkipError (byte-identical) or a hard error (differs).
func (t Copy) Validate() error {
	if err := validateSrc(t.Src); err != nil {
		return err
	}
	if _, err := os.Stat(t.Dst); err == nil {
		identical, err := filesIdentical(t.Src, t.Dst)
		if err != nil {
			return err
		}
		if identical {
			return &SkipError{Reason: fmt.Sprintf("destination %s already exists and is identical to %s", t.Dst, t.Src)}
		}
		return fmt.Errorf("tasks: destination %s exists and differs from %s", t.Dst, t.Src)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Run copies Src to Dst, creating Dst's parent directories as needed. If
// Dst already exists and is identical to Src, Run returns a *SkipError
// instead of performing the copy.
func (t Copy) Run() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.Dst), 0o755); err != nil {
		return err
	}
	info, err := os.Stat(t.Src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyTree(t.Src, t.Dst)
	}
	return copyFile(t.Src, t.Dst)
}

// Spawn never produces a follow-up task.
func (Copy) Spawn(int64) Task { return nil }

// Move moves a file or directory tree from Src to Dst. If ParentID is
// set, completing this task also completes the referenced parent queue
// record (used for the Convert -> Move staging pipeline).
type Move struct {
	Src, Dst  string
	ParentID  int64
	HasParent bool
}

// Kind identifies this variant for serialization.
func (Move) Kind() Kind { return KindMove }

// Validate mirrors Copy.Validate: an identical Dst is a SkipError, a
// differing Dst is a hard error.
func (t Move) Validate() error {
	c := Copy{Src: t.Src, Dst: t.Dst}
	return c.Validate()
}

// Run moves Src to Dst. A directory move is attempted as an atomic rename
// first, falling back to copy+delete across filesystem boundaries.
func (t Move) Run() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.Dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(t.Src, t.Dst); err != nil {
		// cross-device or other rename failure: fall back to copy+delete
		info, statErr := os.Stat(t.Src)
		if statErr != nil {
			return statErr
		}
		if info.IsDir() {
			if err := copyTree(t.Src, t.Dst); err != nil {
				return err
			}
		} else if err := copyFile(t.Src, t.Dst); err != nil {
			return err
		}
		return os.RemoveAll(t.Src)
	}
	return nil
}

// Spawn never produces a follow-up task: Move is itself the follow-up
// produced by Convert.Spawn.
func (Move) Spawn(int64) Task { return nil }
