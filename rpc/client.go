package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	utils "github.com/johnietre/utils/go"
)

var errStreamTerminated = fmt.Errorf("stream terminated")

// Client is a calcrpc client. It is safe for concurrent use; calls issued
// concurrently share one connection and are demultiplexed by request ID.
type Client struct {
	conn       net.Conn
	lw         *utils.LockedWriter
	serialize  SerializeType
	codec      Codec
	reqCounter atomic.Uint64
	pending    *utils.Mutex[map[uint64]chan *Response]
	streams    *utils.Mutex[map[uint64]*ClientStream]
	isClosed   atomic.Bool
	closeErr   atomic.Value
}

// Dial attempts to connect to a server with the given address using TCP.
// Connection failures surface as StatusUnavailable errors.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, Errorf(StatusUnavailable, "cannot reach server at %s: %v", addr, err)
	}
	return NewClient(conn)
}

// NewClient performs the protocol handshake over conn and returns a client.
func NewClient(conn net.Conn) (*Client, error) {
	if _, err := utils.WriteAll(conn, preamble()); err != nil {
		conn.Close()
		return nil, Errorf(StatusUnavailable, "handshake: %v", err)
	}
	var hdr [9]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		conn.Close()
		return nil, Errorf(StatusUnavailable, "handshake: %v", err)
	}
	resp, err := readResponse(conn, get8(hdr[:]), hdr[8], nil)
	if err != nil {
		conn.Close()
		return nil, Errorf(StatusUnavailable, "handshake: %v", err)
	}
	if resp.Status != StatusOK {
		conn.Close()
		return nil, resp.Err()
	}
	c := &Client{
		conn:      conn,
		lw:        utils.NewLockedWriter(conn),
		serialize: SerializeMsgpack,
		codec:     LookupCodec(SerializeMsgpack),
		pending:   utils.NewMutex(make(map[uint64]chan *Response)),
		streams:   utils.NewMutex(make(map[uint64]*ClientStream)),
	}
	go c.readLoop()
	return c, nil
}

// SetCodec switches the body codec used for subsequent calls.
func (c *Client) SetCodec(name string) error {
	st, codec, err := CodecByName(name)
	if err != nil {
		return err
	}
	c.serialize, c.codec = st, codec
	return nil
}

// Close closes the connection. In-flight calls fail with StatusUnavailable.
func (c *Client) Close() error {
	c.fail(Errorf(StatusUnavailable, "client closed"))
	return nil
}

func (c *Client) fail(err error) {
	if c.isClosed.Swap(true) {
		return
	}
	c.closeErr.Store(err)
	c.conn.Close()
	status, msg := statusFromError(err)
	c.pending.Apply(func(mp *map[uint64]chan *Response) {
		for id, ch := range *mp {
			ch <- &Response{reqID: id, Status: status, Body: []byte(msg)}
		}
		*mp = make(map[uint64]chan *Response)
	})
	c.streams.Apply(func(mp *map[uint64]*ClientStream) {
		for id, st := range *mp {
			st.finish(&Response{reqID: id, Status: status, Body: []byte(msg)})
		}
		*mp = make(map[uint64]*ClientStream)
	})
}

func (c *Client) getCloseErr() error {
	if err, ok := c.closeErr.Load().(error); ok {
		return err
	}
	return Errorf(StatusUnavailable, "connection closed")
}

func (c *Client) readLoop() {
	for {
		var hdr [9]byte
		if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
			c.fail(Errorf(StatusUnavailable, "connection lost: %v", err))
			return
		}
		id, flags := get8(hdr[:]), hdr[8]
		if hasStreamMsgFlag(flags) && !hasCloseFlag(flags) {
			var lenBuf [8]byte
			if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
				c.fail(Errorf(StatusUnavailable, "connection lost: %v", err))
				return
			}
			body := make([]byte, get8(lenBuf[:]))
			if _, err := io.ReadFull(c.conn, body); err != nil {
				c.fail(Errorf(StatusUnavailable, "connection lost: %v", err))
				return
			}
			var st *ClientStream
			c.streams.Apply(func(mp *map[uint64]*ClientStream) {
				st = (*mp)[id]
			})
			if st != nil {
				st.q.push(Message{flags: flags, Body: body})
			}
			continue
		}
		resp, err := readResponse(c.conn, id, flags, c.codec)
		if err != nil {
			c.fail(Errorf(StatusUnavailable, "connection lost: %v", err))
			return
		}
		if hasStreamMsgFlag(flags) {
			// Terminal close frame for a stream.
			var st *ClientStream
			c.streams.Apply(func(mp *map[uint64]*ClientStream) {
				st = (*mp)[id]
				delete(*mp, id)
			})
			if st != nil {
				st.finish(resp)
			}
			continue
		}
		var ch chan *Response
		c.pending.Apply(func(mp *map[uint64]chan *Response) {
			ch = (*mp)[id]
			delete(*mp, id)
		})
		if ch != nil {
			ch <- resp
		}
	}
}

func (c *Client) writeRequest(
	id uint64, flags byte, method string, body []byte, timeout time.Duration,
) error {
	if c.isClosed.Load() {
		return c.getCloseErr()
	}
	if timeout > 0 {
		flags |= FlagTimeout
	}
	buf := make([]byte, 0, 28+len(method)+len(body))
	buf = append8(buf, id)
	buf = append(buf, flags, byte(c.serialize))
	buf = append2(buf, uint16(len(method)))
	buf = append8(buf, uint64(len(body)))
	if timeout > 0 {
		buf = append8(buf, uint64(timeout/time.Millisecond))
	}
	buf = append(buf, method...)
	buf = append(buf, body...)
	_, err := utils.WriteAll(c.lw.LockWriter(), buf)
	c.lw.Unlock()
	if err != nil {
		c.fail(Errorf(StatusUnavailable, "connection lost: %v", err))
		return c.getCloseErr()
	}
	return nil
}

// cancelRequest tells the server to cancel the in-flight request. Best
// effort; the caller has already given up on the call.
func (c *Client) cancelRequest(id uint64) {
	var buf [9]byte
	place8(buf[:], id)
	buf[8] = FlagCancel
	utils.WriteAll(c.lw.LockWriter(), buf[:])
	c.lw.Unlock()
}

func (c *Client) deregister(id uint64) {
	c.pending.Apply(func(mp *map[uint64]chan *Response) {
		delete(*mp, id)
	})
}

func ctxTimeout(ctx context.Context) (time.Duration, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0, nil
	}
	timeout := time.Until(dl)
	if timeout <= 0 {
		return 0, Errorf(StatusDeadlineExceeded, "call deadline exceeded")
	}
	return timeout, nil
}

// Call issues a unary call and decodes the reply into out. A nil in sends an
// empty body; a nil out discards the reply. The context deadline, if any, is
// propagated to the server and enforced locally too.
func (c *Client) Call(ctx context.Context, method string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := c.codec.Encode(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	timeout, err := ctxTimeout(ctx)
	if err != nil {
		return err
	}
	id := c.reqCounter.Add(1)
	ch := make(chan *Response, 1)
	c.pending.Apply(func(mp *map[uint64]chan *Response) {
		(*mp)[id] = ch
	})
	if err := c.writeRequest(id, 0, method, body, timeout); err != nil {
		c.deregister(id)
		return err
	}
	select {
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			return err
		}
		if out != nil {
			if err := resp.Decode(out); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
		}
		return nil
	case <-ctx.Done():
		c.cancelRequest(id)
		c.deregister(id)
		status, msg := statusFromError(ctx.Err())
		return &Error{Status: status, Msg: msg}
	}
}

// OpenStream opens a streaming call. A nil in sends an empty request body.
// The returned stream is live once the server acknowledges the method;
// handler-level failures arrive through Recv or Result.
func (c *Client) OpenStream(ctx context.Context, method string, in any) (*ClientStream, error) {
	var body []byte
	if in != nil {
		b, err := c.codec.Encode(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	timeout, err := ctxTimeout(ctx)
	if err != nil {
		return nil, err
	}
	id := c.reqCounter.Add(1)
	st := &ClientStream{
		c:      c,
		id:     id,
		ctx:    ctx,
		codec:  c.codec,
		q:      newMsgQueue(64),
		result: make(chan *Response, 1),
	}
	// Register before sending so a fast close frame cannot race us.
	c.streams.Apply(func(mp *map[uint64]*ClientStream) {
		(*mp)[id] = st
	})
	ch := make(chan *Response, 1)
	c.pending.Apply(func(mp *map[uint64]chan *Response) {
		(*mp)[id] = ch
	})
	if err := c.writeRequest(id, FlagStream, method, body, timeout); err != nil {
		c.deregister(id)
		c.dropStream(id)
		return nil, err
	}
	select {
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			c.dropStream(id)
			return nil, err
		}
		return st, nil
	case <-ctx.Done():
		c.cancelRequest(id)
		c.deregister(id)
		c.dropStream(id)
		status, msg := statusFromError(ctx.Err())
		return nil, &Error{Status: status, Msg: msg}
	}
}

func (c *Client) dropStream(id uint64) {
	c.streams.Apply(func(mp *map[uint64]*ClientStream) {
		delete(*mp, id)
	})
}

// ClientStream is the caller side of a streaming call.
type ClientStream struct {
	c      *Client
	id     uint64
	ctx    context.Context
	codec  Codec
	q      *msgQueue
	resp   *Response
	result chan *Response
	done   atomic.Bool
}

// Send encodes v and sends it as the next stream message.
func (s *ClientStream) Send(v any) error {
	if s.done.Load() {
		return ErrStreamClosed
	}
	b, err := s.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return Message{Body: b}.writeTo(s.c.lw, s.id)
}

// CloseSend signals end-of-input. The stream stays open for the reply.
func (s *ClientStream) CloseSend() error {
	return Message{flags: MsgFlagDone}.writeTo(s.c.lw, s.id)
}

// Recv decodes the next stream element into v. Returns io.EOF after the
// server closes the stream successfully, or the typed error it closed with.
func (s *ClientStream) Recv(v any) error {
	msg, err := s.q.recv(s.ctx, time.Time{})
	if err == errStreamTerminated {
		if err := s.resp.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	if err != nil {
		// Context expiry: tell the server to stop producing.
		s.c.cancelRequest(s.id)
		status, msg := statusFromError(err)
		return &Error{Status: status, Msg: msg}
	}
	return s.codec.Decode(msg.Body, v)
}

// Result waits for the server's terminal reply and decodes it into v. This
// is how a client-streaming call collects its single response.
func (s *ClientStream) Result(v any) error {
	select {
	case resp := <-s.result:
		if err := resp.Err(); err != nil {
			return err
		}
		if v != nil && len(resp.Body) != 0 {
			if err := resp.Decode(v); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
		}
		return nil
	case <-s.ctx.Done():
		s.c.cancelRequest(s.id)
		status, msg := statusFromError(s.ctx.Err())
		return &Error{Status: status, Msg: msg}
	}
}

// Close aborts the stream. Elements already received remain received; the
// server stops producing.
func (s *ClientStream) Close() error {
	if s.done.Swap(true) {
		return nil
	}
	s.c.dropStream(s.id)
	s.resp = &Response{reqID: s.id, Status: StatusCanceled, Body: []byte("stream closed")}
	s.q.close(errStreamTerminated)
	return Message{flags: MsgFlagClose}.writeTo(s.c.lw, s.id)
}

// finish records the terminal frame and wakes both Recv and Result.
func (s *ClientStream) finish(resp *Response) {
	if s.done.Swap(true) {
		return
	}
	s.resp = resp
	s.q.close(errStreamTerminated)
	select {
	case s.result <- resp:
	default:
	}
}
