package framing

import "bytes"

// Delimiter terminates a frame on the parsed channel.
const Delimiter = "\r\n"

// maxPending bounds the unterminated tail kept between chunks. An indicator
// that never sends the delimiter would otherwise grow it forever.
const maxPending = 4096

// LineSplitter reassembles "\r\n"-terminated lines from arbitrary chunks.
// It is not safe for concurrent use; the serial reader owns it.
type LineSplitter struct {
	buf []byte
}

// Write appends a chunk and returns every line it completed, without the
// delimiter.
func (s *LineSplitter) Write(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	for {
		i := bytes.Index(s.buf, []byte(Delimiter))
		if i < 0 {
			break
		}
		lines = append(lines, string(s.buf[:i]))
		s.buf = s.buf[i+len(Delimiter):]
	}

	if len(s.buf) > maxPending {
		// Keep the newest bytes; a trailing '\r' may still pair with the next chunk.
		s.buf = append([]byte(nil), s.buf[len(s.buf)-maxPending:]...)
	}
	return lines
}

// Pending returns the number of buffered bytes awaiting a delimiter.
func (s *LineSplitter) Pending() int { return len(s.buf) }

// Reset drops any partial line.
func (s *LineSplitter) Reset() { s.buf = s.buf[:0] }
