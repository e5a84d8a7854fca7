package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultSampleRate is the rate expected by the ASR models.
const DefaultSampleRate = 16000

var (
	ErrDecoderNotFound = errors.New("audio decoder not found")
	ErrEmptyAudio      = errors.New("empty audio")
	ErrOddPCM          = errors.New("pcm buffer has odd length")
)

// LoadError is returned when the decoder process fails. Stderr holds the
// decoder's diagnostic output.
type LoadError struct {
	Stderr string
	Err    error
}

func (e *LoadError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return "failed to load audio: " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Command is a single subprocess invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs a command with stdin fed from memory and captures both output streams.
type Runner interface {
	Run(ctx context.Context, cmd Command, stdin []byte) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands as operating system processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command, stdin []byte) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Loader turns compressed audio into a normalized mono waveform by piping it
// through an external decoder.
type Loader struct {
	decoder    string
	sampleRate int
	runner     Runner
}

// NewLoader resolves the decoder binary on PATH. A missing decoder is a
// configuration fault and is reported immediately.
func NewLoader(decoder string, sampleRate int, runner Runner) (*Loader, error) {
	path, err := exec.LookPath(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecoderNotFound, decoder, err)
	}

	return newLoader(path, sampleRate, runner), nil
}

func newLoader(decoder string, sampleRate int, runner Runner) *Loader {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	return &Loader{
		decoder:    decoder,
		sampleRate: sampleRate,
		runner:     runner,
	}
}

// SampleRate returns the rate of the waveforms produced by Load.
func (l *Loader) SampleRate() int {
	return l.sampleRate
}

// DecodeCommand reads from stdin and writes raw s16le mono PCM at the target
// rate to stdout.
func (l *Loader) DecodeCommand() Command {
	return Command{
		Name: l.decoder,
		Args: []string{
			"-threads", "0",
			"-i", "pipe:",
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-ac", "1",
			"-ar", strconv.Itoa(l.sampleRate),
			"-",
		},
	}
}

// Load decodes blob into samples in [-1.0, 1.0). Zero-length input and
// decoder output without samples both fail with ErrEmptyAudio.
func (l *Loader) Load(ctx context.Context, blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyAudio
	}

	stdout, stderr, err := l.runner.Run(ctx, l.DecodeCommand(), blob)
	if err != nil {
		return nil, &LoadError{Stderr: string(stderr), Err: err}
	}

	if len(stdout) == 0 {
		return nil, fmt.Errorf("%w: decoder produced no samples", ErrEmptyAudio)
	}

	return PCM16ToFloat32(stdout)
}

// PCM16ToFloat32 converts signed 16-bit little-endian PCM to floats scaled by 1/32768.
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCM, len(pcm))
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32768.0
	}

	return samples, nil
}
