package recording

import (
	"testing"

	"github.com/mewkiz/flac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderWritesDecodableFlac(t *testing.T) {
	r := NewRecorder(t.TempDir(), 48000, 0, nil)

	path, err := r.Start()
	require.NoError(t, err)
	assert.True(t, r.Recording())

	// Two full blocks plus a remainder.
	window := make([]float32, 1024)
	for i := range window {
		window[i] = 0.25
	}
	for i := 0; i < 9; i++ {
		r.Write(window)
	}

	require.NoError(t, r.Stop())
	assert.False(t, r.Recording())

	stream, err := flac.ParseFile(path)
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, uint32(48000), stream.Info.SampleRate)
	assert.Equal(t, uint8(1), stream.Info.NChannels)
	assert.Equal(t, uint8(16), stream.Info.BitsPerSample)
}

func TestRecorderDoubleStart(t *testing.T) {
	r := NewRecorder(t.TempDir(), 48000, 0, nil)

	_, err := r.Start()
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	_, err = r.Start()
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestRecorderStopWithoutStart(t *testing.T) {
	r := NewRecorder(t.TempDir(), 48000, 0, nil)
	assert.ErrorIs(t, r.Stop(), ErrNotRecording)
}

func TestRecorderWriteWhileStopped(t *testing.T) {
	r := NewRecorder(t.TempDir(), 48000, 0, nil)
	// Must not panic.
	r.Write([]float32{0.5})
}

func TestQuantizeClamps(t *testing.T) {
	assert.Equal(t, int32(32767), quantize(1))
	assert.Equal(t, int32(32767), quantize(2))
	assert.Equal(t, int32(-32767), quantize(-1.5))
	assert.Equal(t, int32(0), quantize(0))
}

func TestS3ConfigIsConfigured(t *testing.T) {
	cfg := S3Config{}
	assert.False(t, cfg.IsConfigured())

	cfg = S3Config{
		Endpoint:        "https://s3.example.com",
		Bucket:          "takes",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}
	assert.True(t, cfg.IsConfigured())
}

func TestTestS3ConnectionUnconfigured(t *testing.T) {
	cfg := S3Config{}
	assert.Error(t, TestS3Connection(&cfg))
}
