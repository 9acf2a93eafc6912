package rng

import (
	"fmt"
	"io"

	"github.com/lucentsrv/lucent/hdr"
)

// Result describes how a set of ranges should be served: the status line,
// any extra response headers, and a function that streams the body to w.
type Result struct {
	Status int
	Header hdr.Header
	Length int64 // total bytes the Write func will emit
	Write  func(w io.Writer) error
}

// Apply turns parsed ranges into a Result against src, an io.ReaderAt
// over the resource's full content (normally the already-open *os.File,
// so bodies stream straight from the handle). contentType is the
// resource's own Content-Type, used verbatim for a single range and
// per-part in a multipart response.
func Apply(ranges []Range, contentType string, size int64, src io.ReaderAt) (Result, error) {
	if len(ranges) == 1 {
		r := ranges[0]
		h := hdr.Header{
			hdr.ContentRange: {r.contentRange(size)},
			hdr.ContentType:  {contentType},
		}
		return Result{
			Status: 206,
			Header: h,
			Length: r.Length,
			Write: func(w io.Writer) error {
				_, err := io.Copy(w, io.NewSectionReader(src, r.Start, r.Length))
				return err
			},
		}, nil
	}

	b, err := boundary(func(cand string) bool {
		return bodyContains(src, ranges, cand)
	})
	if err != nil {
		return Result{}, err
	}

	var total int64
	var headers [][]byte
	for _, r := range ranges {
		hBytes := []byte(fmt.Sprintf("--%s\r\nContent-Type: %s\r\nContent-Range: %s\r\n\r\n", b, contentType, r.contentRange(size)))
		headers = append(headers, hBytes)
		total += int64(len(hBytes)) + r.Length + 2 // trailing CRLF after each part's body
	}
	closing := []byte(fmt.Sprintf("--%s--\r\n", b))
	total += int64(len(closing))

	h := hdr.Header{
		hdr.ContentType: {"multipart/byteranges; boundary=" + b},
	}

	return Result{
		Status: 206,
		Header: h,
		Length: total,
		Write: func(w io.Writer) error {
			for i, r := range ranges {
				if _, err := w.Write(headers[i]); err != nil {
					return err
				}
				if _, err := io.Copy(w, io.NewSectionReader(src, r.Start, r.Length)); err != nil {
					return err
				}
				if _, err := w.Write([]byte("\r\n")); err != nil {
					return err
				}
			}
			_, err := w.Write(closing)
			return err
		},
	}, nil
}

// Unsatisfiable builds the 416 response header for when every spec in the
// Range header was dropped as out-of-bounds.
func Unsatisfiable(size int64) hdr.Header {
	return hdr.Header{
		hdr.ContentRange: {fmt.Sprintf("bytes */%d", size)},
	}
}
