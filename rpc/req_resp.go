package rpc

import (
	"context"
	"io"

	utils "github.com/johnietre/utils/go"
)

// Request is a call received by the server.
type Request struct {
	id  uint64
	ctx context.Context
	// ConnID identifies the connection the request arrived on.
	ConnID string
	// RemoteAddr is the remote address of the caller.
	RemoteAddr string
	// Flags are the frame flags that were sent.
	Flags byte
	// Method is the method requested.
	Method string
	// Body is the raw, still-encoded request body.
	Body []byte

	codec Codec
}

func newRequest(
	id uint64, ctx context.Context, connID, addr string,
	flags byte, method string, codec Codec, body []byte,
) *Request {
	return &Request{
		id:         id,
		ctx:        ctx,
		ConnID:     connID,
		RemoteAddr: addr,
		Flags:      flags,
		Method:     method,
		Body:       body,
		codec:      codec,
	}
}

// Context returns the context associated with the request. It carries the
// caller's deadline, if one was sent.
func (r *Request) Context() context.Context {
	return r.ctx
}

// WithContext returns a shallow-copied request with the given context.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

// Decode decodes the request body into v using the request's codec.
func (r *Request) Decode(v any) error {
	return r.codec.Decode(r.Body, v)
}

// Codec returns the codec the caller selected for this call.
func (r *Request) Codec() Codec {
	return r.codec
}

// IsStream reports whether the request opened a stream.
func (r *Request) IsStream() bool {
	return hasStreamFlag(r.Flags)
}

// Response is the terminal outcome of a call. For unary calls it is written
// back as-is; for streams the same frame layout closes the stream.
type Response struct {
	reqID uint64
	flags byte
	// Status is the status code of the response.
	Status byte
	// Body is the encoded reply on success, or a human-readable message on
	// failure.
	Body []byte

	codec Codec
}

func newResponse(reqID uint64, flags byte, codec Codec) *Response {
	return &Response{reqID: reqID, flags: flags, codec: codec}
}

// Encode encodes v into the response body using the call's codec.
func (r *Response) Encode(v any) error {
	b, err := r.codec.Encode(v)
	if err != nil {
		return err
	}
	r.Body = b
	return nil
}

// Decode decodes the response body into v.
func (r *Response) Decode(v any) error {
	return r.codec.Decode(r.Body, v)
}

// SetError sets the response status and message body from the error. Typed
// *Error values keep their status; context errors map to their statuses;
// anything else becomes StatusInternal.
func (r *Response) SetError(err error) {
	status, msg := statusFromError(err)
	r.Status = status
	r.Body = []byte(msg)
}

// Err returns nil if the response status is OK, otherwise the typed *Error
// the status and body describe.
func (r *Response) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &Error{Status: r.Status, Msg: string(r.Body)}
}

// WriteTo writes the response frame to the writer.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 18, 18+len(r.Body))
	place8(buf, r.reqID)
	buf[8], buf[9] = r.flags, r.Status
	place8(buf[10:], uint64(len(r.Body)))
	buf = append(buf, r.Body...)
	return utils.WriteAll(w, buf)
}

// readResponse reads the remainder of a response frame after the 9-byte
// id/flags header has been consumed.
func readResponse(r io.Reader, id uint64, flags byte, codec Codec) (*Response, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	resp := &Response{
		reqID:  id,
		flags:  flags,
		Status: hdr[0],
		codec:  codec,
	}
	if bodyLen := get8(hdr[1:]); bodyLen != 0 {
		resp.Body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, resp.Body); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func writeStatus(lw *utils.LockedWriter, id uint64, flags, status byte, msg string) error {
	resp := &Response{reqID: id, flags: flags, Status: status, Body: []byte(msg)}
	_, err := resp.WriteTo(lw.LockWriter())
	lw.Unlock()
	return err
}
