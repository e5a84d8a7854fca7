package audio

import (
	"bytes"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, -1, 1}

	data, err := EncodeWAV(samples, 16000)
	require.NoError(t, err)

	d := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, d.IsValidFile())
	assert.Equal(t, uint32(16000), d.SampleRate)
	assert.Equal(t, uint16(1), d.NumChans)
	assert.Equal(t, uint16(16), d.BitDepth)

	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 16384, -16384, -32768, 32767}, buf.Data)
}

func TestEncodeWAV_RoundTripsDecodedPCM(t *testing.T) {
	in, err := PCM16ToFloat32(pcm(1, -2, 300, -4000))
	require.NoError(t, err)

	data, err := EncodeWAV(in, 16000)
	require.NoError(t, err)

	buf, err := wav.NewDecoder(bytes.NewReader(data)).FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, -2, 300, -4000}, buf.Data)
}
