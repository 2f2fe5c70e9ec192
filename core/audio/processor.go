package audio

import "time"

// Decoder turns a stream URL into interleaved float PCM starting at offset.
type Decoder interface {
	Decode(url string, offset time.Duration) (*PCMStream, error)
}
