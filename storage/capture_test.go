package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncmfm/config"
	"ncmfm/model"
)

const listBody = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>ncmfm</Name><Prefix>captures/song/</Prefix><KeyCount>2</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
<Contents><Key>captures/song/26209670/20240501T120000Z-0ms.f32le</Key><LastModified>2024-05-01T12:00:00.000Z</LastModified><ETag>&#34;a&#34;</ETag><Size>2048</Size><StorageClass>STANDARD</StorageClass></Contents>
<Contents><Key>captures/song/26209670/20240502T120000Z-0ms.f32le</Key><LastModified>2024-05-02T12:00:00.000Z</LastModified><ETag>&#34;b&#34;</ETag><Size>1024</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`

type fakeS3 struct {
	mu       sync.Mutex
	puts     []*http.Request
	putSizes []int64
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		n, _ := io.Copy(io.Discard, r.Body)
		f.mu.Lock()
		f.puts = append(f.puts, r)
		f.putSizes = append(f.putSizes, n)
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listBody))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*CaptureStore, *fakeS3) {
	t.Helper()

	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client, err := NewMinioClient(&config.Config{
		MinioEndpoint:  u.Host,
		MinioAccessKey: "minio",
		MinioSecretKey: "minio123",
		MinioBucket:    "ncmfm",
	})
	require.NoError(t, err)
	return NewCaptureStore(client, "ncmfm"), fake
}

func TestCaptureObjectName(t *testing.T) {
	at := time.Date(2024, 5, 1, 20, 0, 0, 0, time.FixedZone("CST", 8*3600))

	assert.Equal(t,
		"captures/song/26209670/20240501T120000Z-75000ms.f32le",
		CaptureObjectName(model.TrackRef{Kind: model.Standalone, ID: 26209670}, 75*time.Second, at))
	assert.Equal(t,
		"captures/program/2061034798/20240501T120000Z-0ms.f32le",
		CaptureObjectName(model.TrackRef{Kind: model.Program, ID: 2061034798}, 0, at))
}

func TestCaptureStore_Upload(t *testing.T) {
	store, fake := newTestStore(t)
	md := model.NewTrackMetadata("Hello", []string{"Adele"}, 295000)

	pcm := strings.Repeat("\x00\x00\x80\x3f", 256)
	info, err := store.Upload(context.Background(), "captures/song/26209670/x.f32le", strings.NewReader(pcm), int64(len(pcm)), &md)
	require.NoError(t, err)
	assert.Equal(t, "captures/song/26209670/x.f32le", info.Key)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.puts, 1)
	req := fake.puts[0]
	assert.Equal(t, "/ncmfm/captures/song/26209670/x.f32le", req.URL.Path)
	assert.Equal(t, "Hello", req.Header.Get("X-Amz-Meta-Title"))
	assert.Equal(t, "Adele", req.Header.Get("X-Amz-Meta-Artist"))
	assert.Equal(t, "48000", req.Header.Get("X-Amz-Meta-Sample-Rate"))
	assert.Equal(t, "application/octet-stream", req.Header.Get("Content-Type"))
}

func TestCaptureStore_List(t *testing.T) {
	store, _ := newTestStore(t)

	objects, stats, err := store.List(context.Background(), "song/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, int64(2), stats.TotalObjects)
	assert.Equal(t, int64(3072), stats.TotalSize)
	assert.Equal(t, 2024, stats.LastModified.Year())
	assert.Equal(t, time.May, stats.LastModified.Month())
	assert.Equal(t, 2, stats.LastModified.Day())
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in))
	}
}
