package media

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key, err := ObjectKey("usr_1", PurposeAvatar, "IMAGE/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "avatars/usr_1/img_"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	_, err = ObjectKey("usr_1", Purpose("secrets"), "image/png")
	assert.ErrorIs(t, err, ErrInvalidUpload)
	_, err = ObjectKey("usr_1", PurposeToolkit, "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidUpload)
	_, err = ObjectKey(" ", PurposeToolkit, "image/jpeg")
	assert.ErrorIs(t, err, ErrInvalidUpload)
}

func TestNewStoreWithoutEndpoint(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = store.PresignUpload(context.Background(), "usr_1", PurposeAvatar, "image/png")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, store.PublicURL("k"))
}

func TestPresignUploadSignsLocally(t *testing.T) {
	store, err := NewStore(Config{Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio-secret", Bucket: "moai-media"})
	require.NoError(t, err)

	upload, err := store.PresignUpload(context.Background(), "usr_1", PurposeProject, "image/webp")
	require.NoError(t, err)

	signed, err := url.Parse(upload.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", signed.Host)
	assert.Equal(t, "/moai-media/"+upload.Key, signed.Path)
	assert.NotEmpty(t, signed.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "http://localhost:9000/moai-media/"+upload.Key, upload.PublicURL)
}
