package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hertzlab/micboost/internal/types"
)

func testBackend() *FakeBackend {
	b := NewFakeBackend()
	b.AddDevice(types.AudioDevice{ID: "mic1", Label: "Built-in Microphone", Kind: types.DeviceKindInput, IsDefault: true})
	b.AddDevice(types.AudioDevice{ID: "mic2", Label: "USB Microphone", Kind: types.DeviceKindInput})
	b.AddDevice(types.AudioDevice{ID: "spk1", Label: "Built-in Speakers", Kind: types.DeviceKindOutput, IsDefault: true})
	return b
}

func TestDirectoryRefresh(t *testing.T) {
	d := NewDirectory(testBackend())
	require.NoError(t, d.Refresh())

	inputs := d.Devices(types.DeviceKindInput)
	require.Len(t, inputs, 2)
	assert.Equal(t, "mic1", inputs[0].ID)

	outputs := d.Devices(types.DeviceKindOutput)
	require.Len(t, outputs, 1)

	all := d.All()
	assert.Len(t, all, 3)
}

func TestDirectoryEmptyBeforeRefresh(t *testing.T) {
	d := NewDirectory(testBackend())

	assert.Empty(t, d.Devices(types.DeviceKindInput))
	_, ok := d.DefaultFor(types.DeviceKindInput)
	assert.False(t, ok)
}

func TestDirectoryLookup(t *testing.T) {
	d := NewDirectory(testBackend())
	require.NoError(t, d.Refresh())

	dev, ok := d.Lookup(types.DeviceKindInput, "mic2")
	require.True(t, ok)
	assert.Equal(t, "USB Microphone", dev.Label)

	_, ok = d.Lookup(types.DeviceKindOutput, "mic2")
	assert.False(t, ok)

	_, ok = d.Lookup(types.DeviceKindInput, "ghost")
	assert.False(t, ok)
}

func TestDirectoryDefaultFor(t *testing.T) {
	d := NewDirectory(testBackend())
	require.NoError(t, d.Refresh())

	dev, ok := d.DefaultFor(types.DeviceKindInput)
	require.True(t, ok)
	assert.Equal(t, "mic1", dev.ID)
}

func TestDirectoryDefaultFallsBackToFirst(t *testing.T) {
	b := NewFakeBackend()
	b.AddDevice(types.AudioDevice{ID: "mic9", Kind: types.DeviceKindInput})
	d := NewDirectory(b)
	require.NoError(t, d.Refresh())

	dev, ok := d.DefaultFor(types.DeviceKindInput)
	require.True(t, ok)
	assert.Equal(t, "mic9", dev.ID)
}

func TestDirectoryRefreshReplacesWholesale(t *testing.T) {
	b := testBackend()
	d := NewDirectory(b)
	require.NoError(t, d.Refresh())

	// The mic set changes completely between refreshes.
	b.SetDevices(types.DeviceKindInput, []types.AudioDevice{
		{ID: "mic3", Label: "Headset Microphone", Kind: types.DeviceKindInput, IsDefault: true},
	})
	require.NoError(t, d.Refresh())

	inputs := d.Devices(types.DeviceKindInput)
	require.Len(t, inputs, 1)
	assert.Equal(t, "mic3", inputs[0].ID)
	_, ok := d.Lookup(types.DeviceKindInput, "mic1")
	assert.False(t, ok)
}

func TestDirectoryRefreshErrorKeepsSnapshot(t *testing.T) {
	b := testBackend()
	d := NewDirectory(b)
	require.NoError(t, d.Refresh())

	b.EnumerateErr = errors.New("backend gone")
	require.Error(t, d.Refresh())

	assert.Len(t, d.Devices(types.DeviceKindInput), 2)
}

func TestDirectoryOnChange(t *testing.T) {
	b := testBackend()
	d := NewDirectory(b)
	calls := 0
	d.OnChange(func() { calls++ })

	require.NoError(t, d.Refresh())
	assert.Equal(t, 1, calls)

	// Identical snapshot does not fire the callback.
	require.NoError(t, d.Refresh())
	assert.Equal(t, 1, calls)

	b.SetDevices(types.DeviceKindOutput, nil)
	require.NoError(t, d.Refresh())
	assert.Equal(t, 2, calls)
}

func TestDirectoryWatchPicksUpHotPlug(t *testing.T) {
	b := testBackend()
	d := NewDirectory(b)
	require.NoError(t, d.Refresh())

	stop := d.Watch(5 * time.Millisecond)
	defer stop()

	b.AddDevice(types.AudioDevice{ID: "mic3", Label: "Headset Microphone", Kind: types.DeviceKindInput})
	require.Eventually(t, func() bool {
		_, ok := d.Lookup(types.DeviceKindInput, "mic3")
		return ok
	}, time.Second, 2*time.Millisecond)

	// Stop is idempotent and waits for the watcher to exit.
	stop()
	stop()
}

func TestFakeBackendDefaultSelection(t *testing.T) {
	b := testBackend()

	s, err := b.OpenCapture("", DefaultStreamConfig, func([]float32) {})
	require.NoError(t, err)
	assert.Equal(t, "mic1", s.(*FakeStream).Device.ID)

	_, err = b.OpenCapture("ghost", DefaultStreamConfig, func([]float32) {})
	assert.ErrorIs(t, err, types.ErrDeviceUnavailable)
}

func TestFakeStreamFeedRequiresStart(t *testing.T) {
	b := testBackend()
	var got []float32
	s, err := b.OpenCapture("mic1", DefaultStreamConfig, func(samples []float32) {
		got = append(got, samples...)
	})
	require.NoError(t, err)

	fs := s.(*FakeStream)
	fs.Feed([]float32{0.5})
	assert.Empty(t, got)

	require.NoError(t, fs.Start())
	fs.Feed([]float32{0.5, 0.25})
	assert.Equal(t, []float32{0.5, 0.25}, got)

	require.NoError(t, fs.Stop())
	fs.Feed([]float32{1})
	assert.Len(t, got, 2)
}
