package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// fakeS3 answers the handful of path-style S3 calls S3Store makes.
type fakeS3 struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path is /<bucket>/<key>.
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		keys := make([]string, 0, len(f.objs))
		for k := range f.objs {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objs[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, []byte(b.String())), nil
	case req.Method == http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		f.objs[key] = body
		return respond(http.StatusOK, nil), nil
	case req.Method == http.MethodGet:
		data, ok := f.objs[key]
		if !ok {
			return respond(http.StatusNotFound, nil), nil
		}
		return respond(http.StatusOK, data), nil
	case req.Method == http.MethodDelete:
		delete(f.objs, key)
		return respond(http.StatusNoContent, nil), nil
	}
	return respond(http.StatusNotImplemented, nil), nil
}

func respond(code int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    code,
		Header:        http.Header{"Content-Length": {fmt.Sprint(len(body))}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}

// decodeChunked unwraps a single-chunk aws-chunked body.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	var size int
	if _, err := fmt.Sscanf(strings.SplitN(parts[0], ";", 2)[0], "%x", &size); err != nil || size != len(parts[1]) {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeS3Store(t *testing.T, prefix string) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objs: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewS3StoreFromClient(client, "tripbook", prefix), fake
}

func TestS3Store_RoundTrip(t *testing.T) {
	s, fake := newFakeS3Store(t, "images")
	ctx := context.Background()
	name := NewName()

	require.NoError(t, s.Save(ctx, []byte("jpeg bytes"), name))
	assert.Contains(t, fake.objs, "images/"+name, "objects live under the prefix")

	got, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), got)

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	require.NoError(t, s.Remove(ctx, name))
	_, err = s.Load(ctx, name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3Store_Load_Missing(t *testing.T) {
	s, _ := newFakeS3Store(t, "")

	_, err := s.Load(context.Background(), NewName())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3Store_RejectsInvalidName(t *testing.T) {
	s, _ := newFakeS3Store(t, "")

	err := s.Save(context.Background(), []byte("x"), "nested/name.jpg")

	assert.ErrorIs(t, err, domain.ErrValidation)
}
