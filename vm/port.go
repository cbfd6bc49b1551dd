package scm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
)

// PortFlag packs a port's open/bidirectional/binary/blocked/fold-case/
// source booleans into one word, the same way Procedure packs its flags
// -- these travel together often enough (every read_char/write_char call
// inspects several at once) that one word beats six bools for locality.
type PortFlag uint16

const (
	PortOpen PortFlag = 1 << iota
	PortBidirectional
	PortBinary
	PortBlocked
	PortFoldCase
	PortIsSource
	PortIsOutput
)

// ErrWouldBlock is returned by a non-blocking port read that has no data
// ready. The VM's READ_CHAR/PEEK_CHAR handling registers the port's file
// descriptor with the scheduler and yields the current context, per the
// port layer's blocking semantics for green threads.
var ErrWouldBlock = errors.New("port would block")

// PortCookie is a custom port: a vector of callbacks, letting an embedder
// define arbitrary ports (sockets, pipes, in-process generators).
type PortCookie struct {
	Read  func(buf []byte) (int, error)
	Write func(buf []byte) (int, error)
	Seek  func(offset int64, whence int) (int64, error)
	Close func() error
}

type portKind uint8

const (
	portFile portKind = iota
	portString
	portCustom
)

type Port struct {
	Name string
	kind portKind
	Flags PortFlag
	Line  int

	file   *os.File
	reader *bufio.Reader
	writer *bufio.Writer

	strBuf *bytes.Buffer // backing store for a string output port
	strIn  []byte        // backing store for a string input port
	strPos int

	cookie *PortCookie

	pushback    []rune // pushed-back characters, read back last-in first-out
	fd          int // for scheduler fd-wait registration; -1 if not poll-able
}

func NewFileInputPort(name string, f *os.File) *Port {
	return &Port{Name: name, kind: portFile, file: f, reader: bufio.NewReader(f),
		Flags: PortOpen | PortIsSource, fd: int(f.Fd()), Line: 1}
}

func NewFileOutputPort(name string, f *os.File) *Port {
	return &Port{Name: name, kind: portFile, file: f, writer: bufio.NewWriter(f),
		Flags: PortOpen | PortIsOutput, fd: int(f.Fd())}
}

func NewStringInputPort(name, contents string) *Port {
	return &Port{Name: name, kind: portString, strIn: []byte(contents),
		Flags: PortOpen | PortIsSource, fd: -1, Line: 1}
}

func NewStringOutputPort(name string) *Port {
	return &Port{Name: name, kind: portString, strBuf: &bytes.Buffer{},
		Flags: PortOpen | PortIsOutput, fd: -1}
}

func NewCustomPort(name string, cookie *PortCookie, output bool) *Port {
	flags := PortOpen
	if output {
		flags |= PortIsOutput
	} else {
		flags |= PortIsSource
	}
	return &Port{Name: name, kind: portCustom, cookie: cookie, Flags: flags, fd: -1}
}

func (p *Port) IsOpen() bool   { return p.Flags&PortOpen != 0 }
func (p *Port) IsInput() bool  { return p.Flags&PortIsOutput == 0 }
func (p *Port) IsOutput() bool { return p.Flags&PortIsOutput != 0 }
func (p *Port) Fd() int        { return p.fd }

// ReadChar decodes one UTF-8 codepoint. It returns ErrWouldBlock for a
// non-blocking file port with no buffered data, io.EOF at stream
// exhaustion, and advances Line on a linefeed when the port is a source
// port.
func (p *Port) ReadChar() (rune, error) {
	if n := len(p.pushback); n > 0 {
		r := p.pushback[n-1]
		p.pushback = p.pushback[:n-1]
		return r, nil // counted toward Line when it was first read
	}

	switch p.kind {
	case portString:
		if p.strPos >= len(p.strIn) {
			return 0, io.EOF
		}
		r, size := decodeRuneUTF8(p.strIn[p.strPos:])
		p.strPos += size
		return p.consumeLine(r), nil
	case portFile:
		r, _, err := p.reader.ReadRune()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, ErrWouldBlock
			}
			return 0, err
		}
		return p.consumeLine(r), nil
	case portCustom:
		var buf [4]byte
		n, err := p.cookie.Read(buf[:1])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		need := 1
		switch {
		case buf[0] >= 0xF0:
			need = 4
		case buf[0] >= 0xE0:
			need = 3
		case buf[0] >= 0xC0:
			need = 2
		}
		for n < need {
			m, err := p.cookie.Read(buf[n:need])
			if err != nil || m == 0 {
				break
			}
			n += m
		}
		r, _ := decodeRuneUTF8(buf[:n])
		return p.consumeLine(r), nil
	}
	return 0, io.EOF
}

func (p *Port) consumeLine(r rune) rune {
	if r == '\n' && p.Flags&PortIsSource != 0 {
		p.Line++
	}
	return r
}

func (p *Port) PeekChar() (rune, error) {
	r, err := p.ReadChar()
	if err != nil {
		return 0, err
	}
	p.PushChar(r)
	return r, nil
}

// PushChar pushes r back so the next ReadChar returns it before the
// underlying stream resumes. Pushed characters come back last-in
// first-out; the reader uses two levels when it backs out of a '#' that
// does not start a comment. A pushed-back linefeed is not counted toward
// Line a second time.
func (p *Port) PushChar(r rune) {
	p.pushback = append(p.pushback, r)
}

func (p *Port) WriteChar(r rune) error {
	return p.WriteString(string(r))
}

func (p *Port) WriteString(s string) error {
	switch p.kind {
	case portString:
		p.strBuf.WriteString(s)
		return nil
	case portFile:
		_, err := p.writer.WriteString(s)
		return err
	case portCustom:
		_, err := p.cookie.Write([]byte(s))
		return err
	}
	return errors.New("write on input-only port")
}

func (p *Port) Flush() error {
	if p.kind == portFile && p.writer != nil {
		return p.writer.Flush()
	}
	return nil
}

func (p *Port) AtEOF() bool {
	if len(p.pushback) > 0 {
		return false
	}
	switch p.kind {
	case portString:
		return p.strPos >= len(p.strIn)
	case portFile:
		_, err := p.reader.Peek(1)
		return err != nil
	}
	return false
}

// String returns the accumulated contents of a string output port.
func (p *Port) String() string {
	if p.strBuf != nil {
		return p.strBuf.String()
	}
	return ""
}

func (p *Port) Close() {
	if p.Flags&PortOpen == 0 {
		return
	}
	p.Flush()
	p.Flags &^= PortOpen
	switch p.kind {
	case portFile:
		p.file.Close()
	case portCustom:
		if p.cookie.Close != nil {
			p.cookie.Close()
		}
	}
}

func decodeRuneUTF8(b []byte) (rune, int) {
	if len(b) == 0 {
		return 0, 0
	}
	r := rune(b[0])
	if r < 0x80 {
		return r, 1
	}
	// Minimal multi-byte decode; malformed sequences fall back one byte
	// at a time rather than raising, matching a lenient reader front end.
	n := 1
	for n < len(b) && n < 4 && b[n]&0xC0 == 0x80 {
		n++
	}
	s := string(b[:n])
	for _, rr := range s {
		return rr, n
	}
	return rune(b[0]), 1
}
