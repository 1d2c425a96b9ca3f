package sthree

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves path-style object requests from memory
type fakeS3 struct {
	mx      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mx.Lock()
	defer f.mx.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodHead:
		b, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write(b)
	case http.MethodPut:
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[key] = b
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setupStore(t testing.TB) (storage.Store, *fakeS3) {
	t.Helper()

	fake := &fakeS3{objects: map[string][]byte{
		"/repo-bucket/releases/sixteentons":       []byte("this is the text"),
		"/repo-bucket/releases/a/b/seventeentons": []byte("this is the text for another thing"),
	}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &aws.Config{
		Credentials:      credentials.NewStaticCredentials("access-key", "secret-key-thing", ""),
		Region:           aws.String("us-west-2"),
		Endpoint:         aws.String(server.URL),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(true),
		MaxRetries:       aws.Int(0),
	}
	bs, err := FromURL("s3://repo-bucket/releases/", AWSConfig(cfg))
	require.NoError(t, err)
	return bs, fake
}

func TestHas(t *testing.T) {
	bs, _ := setupStore(t)

	has, err := bs.Has(context.Background(), "sixteentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "a/b/seventeentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "fifteentons")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGet(t *testing.T) {
	bs, _ := setupStore(t)

	rdr, err := bs.Get(context.Background(), "sixteentons")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, "this is the text", string(b))

	_, err = bs.Get(context.Background(), "fifteentons")
	require.Error(t, err)
	assert.True(t, status.IsNotExists(err))
}

func TestPutDelete(t *testing.T) {
	bs, fake := setupStore(t)

	require.NoError(t, bs.Put(context.Background(), "eighteentons", bytes.NewBufferString("here we go once again")))

	fake.mx.Lock()
	assert.Equal(t, "here we go once again", string(fake.objects["/repo-bucket/releases/eighteentons"]))
	fake.mx.Unlock()

	require.NoError(t, bs.Delete(context.Background(), "eighteentons"))
	has, err := bs.Has(context.Background(), "eighteentons")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestString(t *testing.T) {
	bs, _ := setupStore(t)
	assert.Equal(t, "s3@repo-bucket/releases", bs.String())
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Bucket(""))
	require.ErrorIs(t, err, status.ErrInvalidResource)

	_, err = FromURL("gs://bucket")
	require.ErrorIs(t, err, status.ErrInvalidResource)
}

func TestToSentinelErrors(t *testing.T) {
	for _, toPin := range []struct {
		Name     string
		Err      error
		Expected error
	}{
		{Name: "missing key", Err: awserr.NewRequestFailure(awserr.New("NoSuchKey", "", nil), 404, ""), Expected: status.ErrNotExists},
		{Name: "head on missing key", Err: awserr.NewRequestFailure(awserr.New("NotFound", "", nil), 404, ""), Expected: status.ErrNotExists},
		{Name: "missing bucket", Err: awserr.NewRequestFailure(awserr.New("NoSuchBucket", "", nil), 404, ""), Expected: status.ErrNotFound},
		{Name: "invalid bucket", Err: awserr.NewRequestFailure(awserr.New("InvalidBucketName", "", nil), 400, ""), Expected: status.ErrInvalidResource},
		{Name: "throttled", Err: awserr.NewRequestFailure(awserr.New("SlowDown", "", nil), 503, ""), Expected: status.ErrUnavailable},
		{Name: "denied", Err: awserr.NewRequestFailure(awserr.New("AccessDenied", "", nil), 403, ""), Expected: status.ErrForbidden},
		{Name: "other", Err: awserr.NewRequestFailure(awserr.New("InternalError", "", nil), 500, ""), Expected: status.ErrStorageAPI},
	} {
		fixture := toPin
		t.Run(fixture.Name, func(t *testing.T) {
			assert.ErrorIs(t, toSentinelErrors(fixture.Err), fixture.Expected)
		})
	}
	assert.NoError(t, toSentinelErrors(nil))
	assert.NoError(t, ignoreNotExists(toSentinelErrors(awserr.NewRequestFailure(awserr.New("NoSuchKey", "", nil), 404, ""))))
}
