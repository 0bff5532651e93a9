package shrink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Mime types recognised by the sniffer.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeBMP  = "image/bmp"
	MimeWebP = "image/webp"
	MimeTIFF = "image/tiff"
)

var (
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	gif87Sig  = []byte("GIF87a")
	gif89Sig  = []byte("GIF89a")
	bmpSig    = []byte("BM")
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
)

// DetectHeader maps the leading bytes of a file to a mime type. Unknown
// signatures return an empty string.
func DetectHeader(header []byte) string {
	switch {
	case bytes.HasPrefix(header, jpegSig):
		return MimeJPEG
	case bytes.HasPrefix(header, pngSig):
		return MimePNG
	case bytes.HasPrefix(header, gif87Sig), bytes.HasPrefix(header, gif89Sig):
		return MimeGIF
	case len(header) >= 12 && bytes.HasPrefix(header, riffSig) && bytes.Equal(header[8:12], webpSig):
		return MimeWebP
	case bytes.HasPrefix(header, tiffSigLE), bytes.HasPrefix(header, tiffSigBE):
		return MimeTIFF
	case bytes.HasPrefix(header, bmpSig):
		return MimeBMP
	}
	return ""
}

// DetectMime sniffs the type of the file at path from its signature.
func DetectMime(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return DetectHeader(header[:n]), nil
}

// pngHasAlpha reports whether a PNG stores an alpha channel, either through
// its colour type or a tRNS chunk.
func pngHasAlpha(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sig := make([]byte, len(pngSig))
	if _, err := io.ReadFull(f, sig); err != nil {
		return false, fmt.Errorf("failed to read png signature: %w", err)
	}
	if !bytes.Equal(sig, pngSig) {
		return false, fmt.Errorf("%s is not a png file", path)
	}

	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return false, nil
			}
			return false, err
		}
		length := binary.BigEndian.Uint32(chunk[:4])
		kind := string(chunk[4:8])

		switch kind {
		case "IHDR":
			ihdr := make([]byte, length)
			if _, err := io.ReadFull(f, ihdr); err != nil {
				return false, fmt.Errorf("failed to read IHDR: %w", err)
			}
			// Colour types 4 (grey + alpha) and 6 (RGBA) carry alpha.
			if len(ihdr) >= 10 && (ihdr[9] == 4 || ihdr[9] == 6) {
				return true, nil
			}
			if _, err := f.Seek(4, io.SeekCurrent); err != nil {
				return false, err
			}
			continue
		case "tRNS":
			return true, nil
		case "IDAT", "IEND":
			return false, nil
		}

		if _, err := f.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			return false, err
		}
	}
}
