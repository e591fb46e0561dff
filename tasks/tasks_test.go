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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/converters"
)

func TestEchoRun(t *testing.T) {
	e := Echo{Msg: "hello"}
	assert.NoError(t, e.Validate())
	assert.NoError(t, e.Run())
	assert.Nil(t, e.Spawn(1))
	assert.Equal(t, KindEcho, e.Kind())
}

func TestSleepRun(t *testing.T) {
	s := Sleep{Seconds: 0.01}
	start := time.Now()
	require.NoError(t, s.Run())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestFailRun(t *testing.T) {
	f := Fail{}
	assert.NoError(t, f.Validate())
	assert.Error(t, f.Run())
}

func TestDeleteValidateMissingSrc(t *testing.T) {
	d := Delete{Src: filepath.Join(t.TempDir(), "missing")}
	assert.Error(t, d.Validate())
}

func TestDeleteRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	d := Delete{Src: src}
	require.NoError(t, d.Run())
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyRunCreatesDestDirs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))

	c := Copy{Src: src, Dst: dst}
	require.NoError(t, c.Run())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	// source survives a copy
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestCopyValidateIdenticalDestIsSkip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("same"), 0o644))

	c := Copy{Src: src, Dst: dst}
	err := c.Validate()
	require.Error(t, err)
	var skipErr *SkipError
	assert.ErrorAs(t, err, &skipErr)
}

func TestCopyValidateDifferingDestIsHardError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("b"), 0o644))

	c := Copy{Src: src, Dst: dst}
	err := c.Validate()
	require.Error(t, err)
	var skipErr *SkipError
	assert.False(t, errors.As(err, &skipErr))
}

func TestCopyRunDirectory(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "srctree")
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("b"), 0o644))

	dstDir := filepath.Join(dir, "dsttree")
	c := Copy{Src: srcDir, Dst: dstDir}
	require.NoError(t, c.Run())

	got, err := os.ReadFile(filepath.Join(dstDir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestMoveRunRemovesSrc(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "moved", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	m := Move{Src: src, Dst: dst}
	require.NoError(t, m.Run())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveSpawnIsNil(t *testing.T) {
	m := Move{Src: "a", Dst: "b"}
	assert.Nil(t, m.Spawn(1))
}

func TestSimpleConvertValidateExistingDestIsSkip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("already there"), 0o644))

	sc := SimpleConvert{Src: src, Dst: dst, Converter: converters.Copy{}}
	err := sc.Validate()
	require.Error(t, err)
	var skipErr *SkipError
	assert.ErrorAs(t, err, &skipErr)
}

func TestSimpleConvertRunUsesConverter(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio bytes"), 0o644))

	sc := SimpleConvert{Src: src, Dst: dst, Converter: converters.Copy{}}
	require.NoError(t, sc.Run())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(got))
}

func TestConvertRunWritesToStagingPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	tmpDst := filepath.Join(dir, "staging", "src.mp3.part")
	finalDst := filepath.Join(dir, "final", "src.mp3")
	require.NoError(t, os.WriteFile(src, []byte("raw audio"), 0o644))

	c := Convert{Src: src, Dst: finalDst, TmpDst: tmpDst, Converter: converters.Copy{}}
	require.NoError(t, c.Run())

	got, err := os.ReadFile(tmpDst)
	require.NoError(t, err)
	assert.Equal(t, "raw audio", string(got))

	_, err = os.Stat(finalDst)
	assert.True(t, os.IsNotExist(err))
}

func TestConvertSpawnReturnsParentedMove(t *testing.T) {
	c := Convert{Src: "src.wav", Dst: "final.mp3", TmpDst: "staging.mp3"}
	follow := c.Spawn(42)
	move, ok := follow.(Move)
	require.True(t, ok)
	assert.Equal(t, "staging.mp3", move.Src)
	assert.Equal(t, "final.mp3", move.Dst)
	assert.Equal(t, int64(42), move.ParentID)
	assert.True(t, move.HasParent)
}

func TestSrcDst(t *testing.T) {
	cases := []struct {
		name     string
		task     Task
		src, dst string
	}{
		{"echo", Echo{Msg: "hi"}, "", ""},
		{"delete", Delete{Src: "a"}, "a", ""},
		{"copy", Copy{Src: "a", Dst: "b"}, "a", "b"},
		{"move", Move{Src: "a", Dst: "b"}, "a", "b"},
		{"simple_convert", SimpleConvert{Src: "a", Dst: "b"}, "a", "b"},
		{"convert", Convert{Src: "a", Dst: "b"}, "a", "b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, dst := SrcDst(tc.task)
			assert.Equal(t, tc.src, src)
			assert.Equal(t, tc.dst, dst)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "echo", KindEcho.String())
	assert.Equal(t, "convert", KindConvert.String())
	assert.Contains(t, Kind(99).String(), "kind(99)")
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Task{
		Echo{Msg: "hi"},
		Sleep{Seconds: 1.5},
		Fail{},
		Delete{Src: "/tmp/a"},
		Copy{Src: "/tmp/a", Dst: "/tmp/b"},
		SimpleConvert{Src: "/tmp/a.wav", Dst: "/tmp/a.mp3", Converter: converters.Copy{}},
		Convert{Src: "/tmp/a.wav", Dst: "/tmp/a.mp3", TmpDst: "/tmp/staging/a.mp3", Converter: converters.Copy{}},
	}
	for _, tc := range cases {
		data, err := Marshal(tc)
		require.NoError(t, err)

		got, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, tc.Kind(), got.Kind())

		gotSrc, gotDst := SrcDst(got)
		wantSrc, wantDst := SrcDst(tc)
		assert.Equal(t, wantSrc, gotSrc)
		assert.Equal(t, wantDst, gotDst)
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type": 999}`))
	assert.Error(t, err)
}

func TestUnmarshalMalformedJSON(t *testing.T) {
	_, err := Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestMarshalConvertMissingConverterErrors(t *testing.T) {
	_, err := Marshal(SimpleConvert{Src: "a", Dst: "b", Converter: nil})
	assert.Error(t, err)
}
