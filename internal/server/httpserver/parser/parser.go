package parser

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

// Size limits.
const (
	MaxRequestLineBytes = 8 * 1024
	MaxHeaderBytes      = 64 * 1024
	MaxHeaderCount      = 100
	maxChunkLineBytes   = 4 * 1024
)

// Status is the outcome of a Feed call.
type Status uint8

const (
	StatusNeedMore Status = iota
	StatusComplete
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNeedMore:
		return "need-more"
	case StatusComplete:
		return "complete"
	default:
		return "error"
	}
}

type state uint8

const (
	stateRequestLine state = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkDataEnd
	stateTrailers
	stateDone
	stateError
)

// Parser parses one request at a time. It is not safe for concurrent use.
type Parser struct {
	maxContentLength int64

	buf   []byte
	state state
	err   error

	req         *domain.Request
	body        []byte
	remaining   int64
	headerBytes int
	headerCount int
}

// New creates a parser. A maxContentLength <= 0 disables the body limit.
func New(maxContentLength int64) *Parser {
	return &Parser{maxContentLength: maxContentLength}
}

// Feed consumes chunk and advances the parser as far as the buffered
// bytes allow. Once StatusComplete or StatusError is returned, further
// calls return the same result; bytes fed after completion are kept for
// Remaining.
func (p *Parser) Feed(chunk []byte) (Status, error) {
	switch p.state {
	case stateDone:
		p.buf = append(p.buf, chunk...)
		return StatusComplete, nil
	case stateError:
		return StatusError, p.err
	}

	p.buf = append(p.buf, chunk...)
	for {
		progressed, err := p.step()
		if err != nil {
			p.state = stateError
			p.err = err
			return StatusError, err
		}
		if p.state == stateDone {
			return StatusComplete, nil
		}
		if !progressed {
			return StatusNeedMore, nil
		}
	}
}

// Request returns the parsed request once Feed reported StatusComplete.
func (p *Parser) Request() *domain.Request {
	if p.state != stateDone {
		return nil
	}
	return p.req
}

// Remaining returns a copy of the bytes buffered past the end of the
// completed request (pipelined input).
func (p *Parser) Remaining() []byte {
	if p.state != stateDone || len(p.buf) == 0 {
		return nil
	}
	return bytes.Clone(p.buf)
}

// Reset prepares the parser for a new request, discarding all state.
func (p *Parser) Reset() {
	*p = Parser{maxContentLength: p.maxContentLength}
}

func (p *Parser) step() (bool, error) {
	switch p.state {
	case stateRequestLine:
		line, ok, err := p.readLine(MaxRequestLineBytes, "request line")
		if err != nil || !ok {
			return false, err
		}
		if len(line) == 0 {
			// Tolerate empty lines ahead of the request line.
			return true, nil
		}
		req, err := parseRequestLine(string(line))
		if err != nil {
			return false, err
		}
		p.req = req
		p.state = stateHeaders
		return true, nil

	case stateHeaders, stateTrailers:
		line, ok, err := p.readLine(MaxHeaderBytes-p.headerBytes, "header section")
		if err != nil || !ok {
			return false, err
		}
		p.headerBytes += len(line) + 2
		if len(line) == 0 {
			if p.state == stateTrailers {
				p.finish()
				return true, nil
			}
			return true, p.beginBody()
		}
		target := p.req.Header
		if p.state == stateTrailers {
			if p.req.Trailer == nil {
				p.req.Trailer = make(http.Header)
			}
			target = p.req.Trailer
		}
		return true, p.addHeader(target, line)

	case stateBody:
		if len(p.buf) == 0 {
			return false, nil
		}
		n := min(int64(len(p.buf)), p.remaining)
		p.body = append(p.body, p.buf[:n]...)
		p.buf = p.buf[n:]
		p.remaining -= n
		if p.remaining == 0 {
			p.finish()
		}
		return true, nil

	case stateChunkSize:
		line, ok, err := p.readLine(maxChunkLineBytes, "chunk size line")
		if err != nil || !ok {
			return false, err
		}
		size, err := parseChunkSize(line)
		if err != nil {
			return false, err
		}
		if size == 0 {
			p.state = stateTrailers
			return true, nil
		}
		if p.maxContentLength > 0 && int64(len(p.body))+size > p.maxContentLength {
			return false, domain.ErrMessageTooLarge.WithDetails("chunked body exceeds " + strconv.FormatInt(p.maxContentLength, 10) + " bytes")
		}
		p.remaining = size
		p.state = stateChunkData
		return true, nil

	case stateChunkData:
		if len(p.buf) == 0 {
			return false, nil
		}
		n := min(int64(len(p.buf)), p.remaining)
		p.body = append(p.body, p.buf[:n]...)
		p.buf = p.buf[n:]
		p.remaining -= n
		if p.remaining == 0 {
			p.state = stateChunkDataEnd
		}
		return true, nil

	case stateChunkDataEnd:
		switch {
		case len(p.buf) == 0, len(p.buf) == 1 && p.buf[0] == '\r':
			return false, nil
		case p.buf[0] == '\n':
			p.buf = p.buf[1:]
		case p.buf[0] == '\r' && p.buf[1] == '\n':
			p.buf = p.buf[2:]
		default:
			return false, domain.ErrMalformedMessage.WithDetails("missing CRLF after chunk data")
		}
		p.state = stateChunkSize
		return true, nil
	}
	return false, nil
}

// readLine pops one line terminated by LF (optionally preceded by CR).
// ok is false when no full line is buffered yet.
func (p *Parser) readLine(limit int, what string) ([]byte, bool, error) {
	i := bytes.IndexByte(p.buf, '\n')
	if i < 0 {
		if len(p.buf) > limit {
			return nil, false, domain.ErrMessageTooLarge.WithDetails(what + " too long")
		}
		return nil, false, nil
	}
	if i > limit {
		return nil, false, domain.ErrMessageTooLarge.WithDetails(what + " too long")
	}
	line := p.buf[:i]
	p.buf = p.buf[i+1:]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, true, nil
}

func (p *Parser) addHeader(h http.Header, line []byte) error {
	if line[0] == ' ' || line[0] == '\t' {
		return domain.ErrMalformedMessage.WithDetails("obsolete header line folding")
	}
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return domain.ErrMalformedMessage.WithDetails("header line without colon")
	}
	name := string(line[:colon])
	if !isToken(name) {
		return domain.ErrMalformedMessage.WithDetails("invalid header name " + strconv.Quote(name))
	}
	p.headerCount++
	if p.headerCount > MaxHeaderCount {
		return domain.ErrMessageTooLarge.WithDetails("too many header fields")
	}
	value := strings.Trim(string(line[colon+1:]), " \t")
	h.Add(name, value)
	return nil
}

// beginBody decides how the body is delimited once headers are complete.
func (p *Parser) beginBody() error {
	h := p.req.Header
	if host := h.Get("Host"); host != "" && p.req.Host == "" {
		p.req.Host = host
	}

	te := h.Values("Transfer-Encoding")
	cl := h.Values("Content-Length")

	if len(te) > 0 {
		if len(cl) > 0 {
			return domain.ErrMalformedMessage.WithDetails("both Content-Length and Transfer-Encoding present")
		}
		codings := strings.Split(strings.Join(te, ","), ",")
		last := strings.TrimSpace(codings[len(codings)-1])
		if !strings.EqualFold(last, "chunked") {
			return domain.ErrMalformedMessage.WithDetails("request body length cannot be determined")
		}
		p.state = stateChunkSize
		return nil
	}

	if len(cl) == 0 {
		p.finish()
		return nil
	}

	for _, v := range cl[1:] {
		if strings.TrimSpace(v) != strings.TrimSpace(cl[0]) {
			return domain.ErrMalformedMessage.WithDetails("conflicting Content-Length values")
		}
	}
	v := strings.TrimSpace(cl[0])
	if !allDigits(v, false) {
		return domain.ErrMalformedMessage.WithDetails("invalid Content-Length " + strconv.Quote(cl[0]))
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return domain.ErrMalformedMessage.WithDetails("invalid Content-Length " + strconv.Quote(cl[0]))
	}
	if p.maxContentLength > 0 && n > p.maxContentLength {
		return domain.ErrMessageTooLarge.WithDetails("Content-Length " + strconv.FormatInt(n, 10) + " exceeds " + strconv.FormatInt(p.maxContentLength, 10))
	}
	if n == 0 {
		p.finish()
		return nil
	}
	p.remaining = n
	p.body = make([]byte, 0, n)
	p.state = stateBody
	return nil
}

func (p *Parser) finish() {
	p.req.Body = p.body
	p.state = stateDone
}

func parseRequestLine(line string) (*domain.Request, error) {
	method, rest, ok1 := strings.Cut(line, " ")
	target, proto, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || target == "" || strings.Contains(proto, " ") {
		return nil, domain.ErrMalformedMessage.WithDetails("invalid request line")
	}
	if !isToken(method) {
		return nil, domain.ErrMalformedMessage.WithDetails("invalid method " + strconv.Quote(method))
	}
	version, err := parseVersion(proto)
	if err != nil {
		return nil, err
	}

	var host, rawPath, rawQuery string
	switch {
	case target == "*":
		rawPath = "*"
	case target[0] == '/':
		rawPath, rawQuery, _ = strings.Cut(target, "?")
	case strings.Contains(target, "://"):
		u, err := url.ParseRequestURI(target)
		if err != nil || u.Host == "" {
			return nil, domain.ErrMalformedMessage.WithDetails("invalid absolute request target")
		}
		host = u.Host
		rawPath, rawQuery = u.EscapedPath(), u.RawQuery
		if rawPath == "" {
			rawPath = "/"
		}
	default:
		return nil, domain.ErrMalformedMessage.WithDetails("invalid request target " + strconv.Quote(target))
	}
	rawPath, _, _ = strings.Cut(rawPath, "#")

	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, domain.ErrMalformedMessage.WithDetails("invalid escape in request path").WithCause(err)
	}

	req := domain.NewRequest(method, path)
	req.Version = version
	req.RequestURI = target
	req.Host = host
	// Malformed pairs are dropped; the well-formed ones are kept.
	req.Query, _ = url.ParseQuery(rawQuery)
	return req, nil
}

func parseVersion(proto string) (domain.Version, error) {
	bad := domain.ErrMalformedMessage.WithDetails("invalid protocol version " + strconv.Quote(proto))
	if len(proto) != len("HTTP/1.1") || !strings.HasPrefix(proto, "HTTP/") || proto[6] != '.' {
		return domain.Version{}, bad
	}
	major, minor := proto[5], proto[7]
	if major < '0' || major > '9' || minor < '0' || minor > '9' {
		return domain.Version{}, bad
	}
	if major != '1' {
		return domain.Version{}, domain.ErrUnsupported.WithDetails("protocol version " + proto)
	}
	return domain.Version{Major: int(major - '0'), Minor: int(minor - '0')}, nil
}

func parseChunkSize(line []byte) (int64, error) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	s := strings.TrimRight(string(line), " \t")
	if len(s) > 15 || !allDigits(s, true) {
		return 0, domain.ErrMalformedMessage.WithDetails("invalid chunk size")
	}
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, domain.ErrMalformedMessage.WithDetails("invalid chunk size")
	}
	return n, nil
}

// allDigits reports whether s is 1*DIGIT, or 1*HEXDIG when hex is set.
// strconv alone would also take a sign.
func allDigits(s string, hex bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case hex && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return false
		}
	}
	return true
}

// isToken reports whether s is a non-empty RFC 9110 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
