package wire

/*
Wire Codec

Every frame travels alone on its own connection, as UTF-8 text with no
length prefix. Three kinds exist, told apart by a leading tag:

	RAW     := <payload>                      (or "RAW:" <payload>, see below)
	SEQREQ  := "SEQREQ:" <payload> ":" <nonce>
	SEQ     := "SEQ:" <sequenceNumber> ":" <payload>

Payloads may contain ':'. The grammar stays unambiguous because:
  - SEQ takes the number up to the first ':' and the remainder verbatim.
  - SEQREQ takes the nonce after the last ':'; nonces never contain ':'.
  - A RAW payload that itself begins with a reserved tag is escaped with
    a "RAW:" prefix. Untagged frames from older senders still decode as RAW.

A frame never exceeds MaxFrameSize, the size of the receiver's read buffer.
*/

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFrameSize is the largest frame a receiver reads from a connection.
	MaxFrameSize = 1024

	// NonceSize is the length of the canonical textual UUID used as SEQREQ nonce.
	NonceSize = 36

	// MaxPayloadSize is the largest payload that fits every frame kind.
	// SEQREQ has the biggest envelope.
	MaxPayloadSize = MaxFrameSize - len(tagSeqReq) - 1 - NonceSize
)

const (
	tagRaw    = "RAW:"
	tagSeqReq = "SEQREQ:"
	tagSeq    = "SEQ:"
)

var (
	ErrEmptyFrame     = errors.New("empty frame")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrBadSequence    = errors.New("unparseable sequence number")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrInvalidUTF8    = errors.New("frame is not valid UTF-8")
)

// Kind identifies which of the three wire forms a frame carries.
type Kind uint8

const (
	KindRaw Kind = iota
	KindSeqReq
	KindSeq
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "RAW"
	case KindSeqReq:
		return "SEQREQ"
	case KindSeq:
		return "SEQ"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame is the decoded form of one wire message.
// Seq is only set for KindSeq, Nonce only for KindSeqReq.
type Frame struct {
	Kind    Kind
	Seq     uint64
	Payload string
	Nonce   string
}

// Raw builds a RAW frame.
func Raw(payload string) Frame {
	return Frame{Kind: KindRaw, Payload: payload}
}

// SeqReq builds a sequence request frame.
func SeqReq(payload, nonce string) Frame {
	return Frame{Kind: KindSeqReq, Payload: payload, Nonce: nonce}
}

// Seq builds a sequence assignment frame.
func Seq(n uint64, payload string) Frame {
	return Frame{Kind: KindSeq, Seq: n, Payload: payload}
}

// CheckPayload reports whether payload can travel inside every frame kind.
func CheckPayload(payload string) error {
	if payload == "" {
		return ErrEmptyFrame
	}
	if !utf8.ValidString(payload) {
		return ErrInvalidUTF8
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrFrameTooLarge, len(payload), MaxPayloadSize)
	}
	return nil
}

// Encode renders f in its text form.
func Encode(f Frame) ([]byte, error) {
	if f.Payload == "" {
		return nil, ErrEmptyFrame
	}
	if !utf8.ValidString(f.Payload) {
		return nil, ErrInvalidUTF8
	}

	if f.Kind != KindSeq && len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, limit %d", ErrFrameTooLarge, f.Kind, len(f.Payload), MaxPayloadSize)
	}

	var s string
	switch f.Kind {
	case KindRaw:
		s = f.Payload
		if hasReservedTag(f.Payload) {
			s = tagRaw + f.Payload
		}
	case KindSeqReq:
		if f.Nonce == "" || strings.ContainsRune(f.Nonce, ':') {
			return nil, fmt.Errorf("%w: nonce %q", ErrMalformedFrame, f.Nonce)
		}
		s = tagSeqReq + f.Payload + ":" + f.Nonce
	case KindSeq:
		if f.Seq == 0 {
			return nil, fmt.Errorf("%w: sequence numbers start at 1", ErrBadSequence)
		}
		s = tagSeq + strconv.FormatUint(f.Seq, 10) + ":" + f.Payload
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrMalformedFrame, f.Kind)
	}

	if len(s) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(s))
	}
	return []byte(s), nil
}

// Decode parses one frame. Trailing NUL padding is ignored.
func Decode(b []byte) (Frame, error) {
	if len(b) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}
	if !utf8.Valid(b) {
		return Frame{}, ErrInvalidUTF8
	}
	s := strings.TrimRight(string(b), "\x00")
	if s == "" {
		return Frame{}, ErrEmptyFrame
	}

	switch {
	case strings.HasPrefix(s, tagSeqReq):
		rest := s[len(tagSeqReq):]
		i := strings.LastIndexByte(rest, ':')
		if i <= 0 || i == len(rest)-1 {
			return Frame{}, fmt.Errorf("%w: sequence request without payload or nonce", ErrMalformedFrame)
		}
		return checked(SeqReq(rest[:i], rest[i+1:]))

	case strings.HasPrefix(s, tagSeq):
		rest := s[len(tagSeq):]
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			return Frame{}, fmt.Errorf("%w: sequence frame without payload", ErrMalformedFrame)
		}
		n, err := strconv.ParseUint(rest[:i], 10, 64)
		if err != nil || n == 0 {
			return Frame{}, fmt.Errorf("%w: %q", ErrBadSequence, rest[:i])
		}
		if i == len(rest)-1 {
			return Frame{}, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
		}
		return Seq(n, rest[i+1:]), nil

	case strings.HasPrefix(s, tagRaw):
		rest := s[len(tagRaw):]
		if rest == "" {
			return Frame{}, ErrEmptyFrame
		}
		return checked(Raw(rest))
	}

	return checked(Raw(s))
}

// checked rejects RAW and SEQREQ payloads that could not be re-sent as a
// sequence assignment.
func checked(f Frame) (Frame, error) {
	if len(f.Payload) > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: %s payload is %d bytes, limit %d", ErrFrameTooLarge, f.Kind, len(f.Payload), MaxPayloadSize)
	}
	return f, nil
}

func hasReservedTag(s string) bool {
	return strings.HasPrefix(s, tagSeqReq) ||
		strings.HasPrefix(s, tagSeq) ||
		strings.HasPrefix(s, tagRaw)
}
