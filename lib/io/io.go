package iolib

import "io"

// WriteFull writes the whole buf to w, retrying short writes.
func WriteFull(w io.Writer, buf []byte) (uint, error) {
	total := uint(0)
	for total < uint(len(buf)) {
		n, err := w.Write(buf[total:])
		total += uint(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
