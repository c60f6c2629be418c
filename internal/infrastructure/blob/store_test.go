package blob

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchain/agentchain/internal/domain/content"
)

func testStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestPutAndDigest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	files := []content.File{
		{RelativePath: "weights/model.bin", Data: []byte("binary-weights")},
		{RelativePath: "README.md", Data: []byte("# model")},
	}
	result, err := s.Put(ctx, "model/ref-1", files)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, int64(len("binary-weights")+len("# model")), result.Bytes)
	assert.NotEmpty(t, result.Digest)

	// The digest survives independent of the Put call.
	digest, err := s.Digest(ctx, "model/ref-1")
	require.NoError(t, err)
	assert.Equal(t, result.Digest, digest)

	exists, err := s.Exists(ctx, "model/ref-1")
	require.NoError(t, err)
	assert.True(t, exists)

	paths, err := s.List(ctx, "model/ref-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "weights/model.bin"}, paths)
}

func TestDigestIsContentSensitive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.Put(ctx, "model/a", []content.File{{RelativePath: "f", Data: []byte("one")}})
	require.NoError(t, err)
	b, err := s.Put(ctx, "model/b", []content.File{{RelativePath: "f", Data: []byte("two")}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestPutRejectsTraversal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "model/ref-1", []content.File{{RelativePath: "../escape", Data: []byte("x")}})
	assert.Error(t, err)

	_, err = s.Put(ctx, "../escape", []content.File{{RelativePath: "f", Data: []byte("x")}})
	assert.Error(t, err)
}

func TestPutRejectsEmptyBundle(t *testing.T) {
	s := testStore(t)
	_, err := s.Put(context.Background(), "model/ref-1", nil)
	assert.Error(t, err)
}

func TestExistsUnknownRef(t *testing.T) {
	s := testStore(t)
	exists, err := s.Exists(context.Background(), "model/missing")
	require.NoError(t, err)
	assert.False(t, exists)
}
