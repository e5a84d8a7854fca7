package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, cmd Command, stdin []byte) ([]byte, []byte, error) {
	args := m.Called(ctx, cmd, stdin)
	var stdout, stderr []byte
	if v := args.Get(0); v != nil {
		stdout = v.([]byte)
	}
	if v := args.Get(1); v != nil {
		stderr = v.([]byte)
	}
	return stdout, stderr, args.Error(2)
}

func pcm(values ...int16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func TestPCM16ToFloat32(t *testing.T) {
	samples, err := PCM16ToFloat32(pcm(0, 16384, -16384, math.MaxInt16, math.MinInt16))
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}, samples)
}

func TestPCM16ToFloat32_LengthAndRange(t *testing.T) {
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i * 37)
	}

	samples, err := PCM16ToFloat32(buf)
	require.NoError(t, err)
	assert.Len(t, samples, len(buf)/2)

	for _, s := range samples {
		assert.GreaterOrEqual(t, s, float32(-1.0))
		assert.LessOrEqual(t, s, float32(1.0))
	}
}

func TestPCM16ToFloat32_OddLength(t *testing.T) {
	_, err := PCM16ToFloat32([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrOddPCM)
}

func TestLoader_DecodeCommand(t *testing.T) {
	l := newLoader("ffmpeg", 16000, nil)

	cmd := l.DecodeCommand()
	assert.Equal(t, "ffmpeg", cmd.Name)
	assert.Equal(t, []string{
		"-threads", "0",
		"-i", "pipe:",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-",
	}, cmd.Args)
	assert.Equal(t, 16000, l.SampleRate())
}

func TestLoader_Load(t *testing.T) {
	runner := new(MockRunner)
	l := newLoader("ffmpeg", 16000, runner)
	blob := []byte("OggS....")

	runner.On("Run", mock.Anything, l.DecodeCommand(), blob).
		Return(pcm(0, 16384), []byte{}, nil)

	samples, err := l.Load(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, samples)

	runner.AssertExpectations(t)
}

func TestLoader_EmptyInput(t *testing.T) {
	runner := new(MockRunner)
	l := newLoader("ffmpeg", 16000, runner)

	_, err := l.Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoader_EmptyOutput(t *testing.T) {
	runner := new(MockRunner)
	l := newLoader("ffmpeg", 16000, runner)

	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil, nil)

	_, err := l.Load(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestLoader_DecoderFailure(t *testing.T) {
	runner := new(MockRunner)
	l := newLoader("ffmpeg", 16000, runner)
	exitErr := errors.New("exit status 1")

	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, []byte("pipe:: Invalid data found when processing input\n"), exitErr)

	_, err := l.Load(context.Background(), []byte("garbage"))
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, exitErr)
	assert.Equal(t, "failed to load audio: pipe:: Invalid data found when processing input", err.Error())
}

func TestLoadError_FallsBackToCause(t *testing.T) {
	err := &LoadError{Err: errors.New("signal: killed")}
	assert.Equal(t, "failed to load audio: signal: killed", err.Error())
}

func TestNewLoader_MissingDecoder(t *testing.T) {
	_, err := NewLoader("definitely-not-a-decoder-binary", 16000, nil)
	assert.ErrorIs(t, err, ErrDecoderNotFound)
}

func TestCommand_String(t *testing.T) {
	cmd := Command{Name: "ffmpeg", Args: []string{"-i", "pipe:"}}
	assert.Equal(t, "ffmpeg -i pipe:", cmd.String())
}
