package audio

import (
	"io"

	"ncmfm/model"
)

// Codec of the samples carried by an Input.
type Codec int

const (
	// FloatPCM is 32-bit little-endian float, interleaved.
	FloatPCM Codec = iota
)

func (c Codec) String() string {
	switch c {
	case FloatPCM:
		return "f32le"
	default:
		return "unknown"
	}
}

// Container framing of an Input.
type Container int

const (
	// Raw means no framing at all.
	Raw Container = iota
)

func (c Container) String() string {
	switch c {
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// Input 交给播放端的音频句柄，读取器由 Input 持有
type Input struct {
	Stereo    bool
	Codec     Codec
	Container Container
	Metadata  *model.TrackMetadata

	reader io.ReadCloser
}

// NewInput wraps reader for the audio consumer.
func NewInput(stereo bool, reader io.ReadCloser, codec Codec, container Container, metadata *model.TrackMetadata) *Input {
	return &Input{
		Stereo:    stereo,
		Codec:     codec,
		Container: container,
		Metadata:  metadata,
		reader:    reader,
	}
}

func (in *Input) Read(p []byte) (int, error) {
	return in.reader.Read(p)
}

// Close releases the underlying reader.
func (in *Input) Close() error {
	return in.reader.Close()
}

// Channels 声道数
func (in *Input) Channels() int {
	if in.Stereo {
		return 2
	}
	return 1
}

// FrameSize is the byte size of one sample frame across all channels.
func (in *Input) FrameSize() int {
	return 4 * in.Channels()
}
