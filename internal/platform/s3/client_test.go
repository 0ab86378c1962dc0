package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient creates a Client backed by a test HTTP server.
// The handler receives real S3 XML-protocol requests.
func testClient(t *testing.T, region string, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
	})

	return &Client{s3: client, region: region}
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	c := NewClient(aws.Config{Region: "eu-west-1"}, "http://localhost:4566")
	require.NotNil(t, c)
	assert.Equal(t, "eu-west-1", c.region)
}

func TestEnsureBucket_CreatesAndEnablesVersioning(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var calls []string
	var createBody string

	c := testClient(t, "eu-west-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodHead:
			calls = append(calls, "head")
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Query().Has("versioning"):
			calls = append(calls, "versioning")
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "<Status>Enabled</Status>")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			calls = append(calls, "create")
			body, _ := io.ReadAll(r.Body)
			createBody = string(body)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
	}))

	require.NoError(t, c.EnsureBucket(context.Background(), "state"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"head", "create", "versioning"}, calls)
	assert.Contains(t, createBody, "<LocationConstraint>eu-west-1</LocationConstraint>")
}

func TestEnsureBucket_ExistingBucket(t *testing.T) {
	t.Parallel()
	var created bool

	c := testClient(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && !r.URL.Query().Has("versioning") {
			created = true
		}
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.EnsureBucket(context.Background(), "state"))
	assert.False(t, created)
}

func TestPutObject_Encrypted(t *testing.T) {
	t.Parallel()
	c := testClient(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/state/dev/state"))
		assert.Equal(t, "AES256", r.Header.Get("X-Amz-Server-Side-Encryption"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"serial":1}`, string(body))
		w.Header().Set("X-Amz-Version-Id", "v-1")
		w.WriteHeader(http.StatusOK)
	}))

	version, err := c.PutObject(context.Background(), "state", "dev/state", []byte(`{"serial":1}`), true)

	require.NoError(t, err)
	assert.Equal(t, "v-1", version)
}

func TestGetObject(t *testing.T) {
	t.Parallel()
	c := testClient(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			xmlResponse(w, http.StatusNotFound, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write([]byte(`{"serial":7}`))
	}))

	data, err := c.GetObject(context.Background(), "state", "dev/state")
	require.NoError(t, err)
	assert.Equal(t, `{"serial":7}`, string(data))

	_, err = c.GetObject(context.Background(), "state", "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"typed no such key", &s3types.NoSuchKey{}, true},
		{"typed no such bucket", &s3types.NoSuchBucket{}, true},
		{"generic 404 code", &smithy.GenericAPIError{Code: "404"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isNotFoundError(tt.err))
		})
	}
}

func TestIsBucketAlreadyOwnedByYou(t *testing.T) {
	t.Parallel()
	assert.False(t, isBucketAlreadyOwnedByYou(nil))
	assert.True(t, isBucketAlreadyOwnedByYou(&s3types.BucketAlreadyOwnedByYou{}))
	assert.True(t, isBucketAlreadyOwnedByYou(&smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}))
	assert.False(t, isBucketAlreadyOwnedByYou(&smithy.GenericAPIError{Code: "BucketAlreadyExists"}))
}
