// Package parser implements an incremental HTTP/1.x request parser.
//
// Bytes are pushed in arbitrary chunks with Feed; the parser reports
// whether it needs more input, has a complete request, or rejected the
// stream. Every rejection is a protocol-classified domain error so that
// callers can tell it apart from transport failures.
package parser
