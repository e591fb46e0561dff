package converters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("foo"), 0o644))

	c := Copy{}
	require.NoError(t, c.Run(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(got))
}

func TestMarshalUnmarshalCopy(t *testing.T) {
	data, err := Marshal(Copy{})
	require.NoError(t, err)

	c, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, Copy{}, c)
}

func TestMarshalUnmarshalPydub(t *testing.T) {
	p := Pydub{
		Format:         "mp3",
		Codec:          "libmp3lame",
		Bitrate:        "192k",
		ID3Version:     "3",
		RemoveAlbumArt: true,
	}
	data, err := Marshal(p)
	require.NoError(t, err)

	c, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, p.Format, c.(Pydub).Format)
	assert.Equal(t, p.Codec, c.(Pydub).Codec)
	assert.Equal(t, p.Bitrate, c.(Pydub).Bitrate)
	assert.Equal(t, p.ID3Version, c.(Pydub).ID3Version)
	assert.True(t, c.(Pydub).RemoveAlbumArt)
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type": 99}`))
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "mp3", Pydub{Format: "mp3"}.Extension())
	assert.Equal(t, "", Copy{}.Extension())
}
