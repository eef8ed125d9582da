package audio

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// wavHeader is the fixed 44-byte RIFF/WAVE preamble for PCM16LE mono data.
type wavHeader struct {
	RIFF      [4]byte
	RIFFSize  uint32
	WAVE      [4]byte
	Fmt       [4]byte
	FmtSize   uint32
	Format    uint16
	Channels  uint16
	Rate      uint32
	ByteRate  uint32
	Align     uint16
	Bits      uint16
	Data      [4]byte
	DataSize  uint32
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono audio bytes as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVPCM16LETo(f, pcm, sampleRate)
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	h := wavHeader{
		RIFF:     [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize: 36 + uint32(len(pcm)),
		WAVE:     [4]byte{'W', 'A', 'V', 'E'},
		Fmt:      [4]byte{'f', 'm', 't', ' '},
		FmtSize:  16,
		Format:   1, // PCM
		Channels: 1,
		Rate:     uint32(sampleRate),
		ByteRate: uint32(sampleRate * 2),
		Align:    2,
		Bits:     16,
		Data:     [4]byte{'d', 'a', 't', 'a'},
		DataSize: uint32(len(pcm)),
	}

	w := bufio.NewWriter(out)
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
