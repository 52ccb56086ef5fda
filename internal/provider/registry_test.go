package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCapability struct {
	code string
}

func (s *stubCapability) Code() string { return s.code }

func (s *stubCapability) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	return &UploadResult{URL: "https://example.com/" + in.OriginalName}, nil
}

func (s *stubCapability) Delete(ctx context.Context, in DeleteInput) (*DeleteResult, error) {
	return &DeleteResult{Success: true}, nil
}

func (s *stubCapability) TestConnection(ctx context.Context, creds Credentials) (*ConnectionResult, error) {
	return &ConnectionResult{IsHealthy: true}, nil
}

type stubStreamingCapability struct {
	stubCapability
}

func (s *stubStreamingCapability) GetStream(ctx context.Context, in StreamInput) (*StreamResult, error) {
	return &StreamResult{StatusCode: 200}, nil
}

func TestRegistry_Consistency(t *testing.T) {
	reg := NewRegistry(
		&stubCapability{code: "dood"},
		&stubStreamingCapability{stubCapability{code: "s3"}},
	)

	codes := reg.Codes()
	assert.Equal(t, []string{"dood", "s3"}, codes)

	// every listed code is available and resolvable
	for _, code := range codes {
		assert.True(t, reg.Available(code))
		c, err := reg.Get(code)
		require.NoError(t, err)
		assert.Equal(t, code, c.Code())
	}
}

func TestRegistry_UnknownCode(t *testing.T) {
	reg := NewRegistry(&stubCapability{code: "dood"})

	assert.False(t, reg.Available("mega"))

	_, err := reg.Get("mega")
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Contains(t, err.Error(), "mega")
}

func TestRegistry_Streamer(t *testing.T) {
	reg := NewRegistry(
		&stubCapability{code: "dood"},
		&stubStreamingCapability{stubCapability{code: "s3"}},
	)

	_, ok := reg.Streamer("dood")
	assert.False(t, ok, "hosting-API provider must not stream")

	s, ok := reg.Streamer("s3")
	assert.True(t, ok)
	assert.NotNil(t, s)

	_, ok = reg.Streamer("unknown")
	assert.False(t, ok)
}

func TestRegistry_Empty(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Codes())
	assert.False(t, reg.Available("anything"))
}
