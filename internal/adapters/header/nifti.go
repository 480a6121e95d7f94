package header

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540

	// xyzt_units time codes
	unitsSec  = 8
	unitsMsec = 16
	unitsUsec = 24
	timeMask  = 0x38
)

func readNIfTI(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
		}
		defer gz.Close()
		r = gz
	}

	buf := make([]byte, nifti2HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}
	buf = buf[:n]
	if len(buf) < nifti1HeaderSize {
		return Info{}, fmt.Errorf("%w: %s: short header (%d bytes)", ErrMalformed, path, len(buf))
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(buf[0:4]) {
		case nifti1HeaderSize:
			return parseNIfTI1(buf, order), nil
		case nifti2HeaderSize:
			if len(buf) < nifti2HeaderSize {
				return Info{}, fmt.Errorf("%w: %s: truncated NIfTI-2 header", ErrMalformed, path)
			}
			return parseNIfTI2(buf, order), nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s: unknown sizeof_hdr", ErrMalformed, path)
}

func parseNIfTI1(buf []byte, order binary.ByteOrder) Info {
	var dim [8]int64
	for i := range dim {
		dim[i] = int64(int16(order.Uint16(buf[40+2*i:])))
	}
	pixdim4 := float64(math.Float32frombits(order.Uint32(buf[76+4*4:])))
	return buildInfo(dim, pixdim4, int(buf[123]))
}

func parseNIfTI2(buf []byte, order binary.ByteOrder) Info {
	var dim [8]int64
	for i := range dim {
		dim[i] = int64(order.Uint64(buf[16+8*i:]))
	}
	pixdim4 := math.Float64frombits(order.Uint64(buf[104+8*4:]))
	return buildInfo(dim, pixdim4, int(order.Uint32(buf[500:])))
}

func buildInfo(dim [8]int64, pixdim4 float64, units int) Info {
	var info Info
	if dim[0] >= 3 && dim[3] > 0 {
		info.Slices = int(dim[3])
	}
	if dim[0] >= 4 && pixdim4 > 0 {
		switch units & timeMask {
		case unitsMsec:
			info.RepetitionTime = pixdim4 / 1e3
		case unitsUsec:
			info.RepetitionTime = pixdim4 / 1e6
		case unitsSec:
			info.RepetitionTime = pixdim4
		default:
			// unknown unit: leave the TR to the sidecar
		}
	}
	return info
}
