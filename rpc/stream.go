package rpc

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	utils "github.com/johnietre/utils/go"
)

var (
	// ErrTimedOut means a receive timed out.
	ErrTimedOut = fmt.Errorf("timed out")
	// ErrStreamClosed means the stream was closed.
	ErrStreamClosed = fmt.Errorf("stream closed")
)

// Message is a message sent/received on a stream.
type Message struct {
	flags byte
	// Body is the encoded message body.
	Body []byte
}

// NewMessage creates a message with the given body.
func NewMessage(body []byte) Message {
	return Message{Body: body}
}

func (msg Message) writeTo(lw *utils.LockedWriter, id uint64) error {
	buf := make([]byte, 17, 17+len(msg.Body))
	place8(buf, id)
	buf[8] = msg.flags | FlagStreamMsg
	place8(buf[9:], uint64(len(msg.Body)))
	buf = append(buf, msg.Body...)
	_, err := utils.WriteAll(lw.LockWriter(), buf)
	lw.Unlock()
	return err
}

// msgQueue hands messages from the connection reader to a receiver. A
// bounded channel takes the fast path; overflow spills into a list so the
// reader never blocks on a slow receiver. Once closed, buffered messages are
// still drained in order before the terminal error is reported.
type msgQueue struct {
	ch       chan Message
	mtx      sync.Mutex
	overflow *list.List
	closed   bool
	termErr  error
}

func newMsgQueue(n int) *msgQueue {
	return &msgQueue{
		ch:       make(chan Message, n),
		overflow: list.New(),
	}
}

func (q *msgQueue) push(msg Message) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return q.termErr
	}
	for e := q.overflow.Front(); e != nil; {
		select {
		case q.ch <- e.Value.(Message):
			next := e.Next()
			q.overflow.Remove(e)
			e = next
		default:
			q.overflow.PushBack(msg)
			return nil
		}
	}
	select {
	case q.ch <- msg:
	default:
		q.overflow.PushBack(msg)
	}
	return nil
}

// pump moves overflow messages onto the channel after a receive frees space.
func (q *msgQueue) pump() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return
	}
	for e := q.overflow.Front(); e != nil; {
		select {
		case q.ch <- e.Value.(Message):
			next := e.Next()
			q.overflow.Remove(e)
			e = next
		default:
			return
		}
	}
}

func (q *msgQueue) popBuffered() (Message, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if e := q.overflow.Front(); e != nil {
		q.overflow.Remove(e)
		return e.Value.(Message), nil
	}
	return Message{}, q.termErr
}

// close marks the queue terminal. Receivers drain whatever is buffered and
// then get err. io.EOF marks a clean half-close.
func (q *msgQueue) close(err error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return
	}
	q.closed, q.termErr = true, err
	close(q.ch)
}

func (q *msgQueue) recv(ctx context.Context, deadline time.Time) (Message, error) {
	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	var timeC <-chan time.Time
	if !deadline.IsZero() {
		until := time.Until(deadline)
		if until <= 0 {
			return Message{}, ErrTimedOut
		}
		timer := time.NewTimer(until)
		defer timer.Stop()
		timeC = timer.C
	}
	select {
	case msg, ok := <-q.ch:
		if ok {
			q.pump()
			return msg, nil
		}
		return q.popBuffered()
	case <-done:
		return Message{}, ctx.Err()
	case <-timeC:
		return Message{}, ErrTimedOut
	}
}

// Stream is the server side of a streaming call. The handler receives
// caller messages with Recv/RecvMsg, emits elements with Send/SendMsg, and
// finishes the call with Close, CloseOK, or CloseError.
type Stream struct {
	lw       *utils.LockedWriter
	req      *Request
	codec    Codec
	q        *msgQueue
	deadline *utils.AValue[time.Time]
	isClosed atomic.Bool
	status   atomic.Uint32
	onClose  func()
}

func newStream(lw *utils.LockedWriter, req *Request, onClose func()) *Stream {
	return &Stream{
		lw:       lw,
		req:      req,
		codec:    req.codec,
		q:        newMsgQueue(64),
		deadline: utils.NewAValue[time.Time](time.Time{}),
		onClose:  onClose,
	}
}

// Request returns the request that opened the stream.
func (s *Stream) Request() *Request {
	return s.req
}

// Context returns the request context, carrying the caller's deadline.
func (s *Stream) Context() context.Context {
	return s.req.ctx
}

// addMsg routes an inbound frame into the stream.
func (s *Stream) addMsg(msg Message) error {
	if hasDoneFlag(msg.flags) {
		// Half-close: the caller is done sending, the stream stays open
		// for the reply.
		s.q.close(io.EOF)
		return nil
	}
	if hasCloseFlag(msg.flags) {
		s.closeRecvd()
		return nil
	}
	return s.q.push(msg)
}

// Recv receives the next message from the caller. Returns io.EOF once the
// caller has signaled end-of-input, ErrStreamClosed if the stream was torn
// down, or the context error if the call deadline fired.
func (s *Stream) Recv() (Message, error) {
	return s.q.recv(s.req.ctx, s.deadline.Load())
}

// RecvMsg receives the next message and decodes it into v.
func (s *Stream) RecvMsg(v any) error {
	msg, err := s.Recv()
	if err != nil {
		return err
	}
	return s.codec.Decode(msg.Body, v)
}

// SetRecvDeadline sets the time at which Recv calls time out, independent of
// the call deadline. Passing the zero time removes it.
func (s *Stream) SetRecvDeadline(t time.Time) {
	s.deadline.Store(t)
}

// Send sends a message on the stream.
func (s *Stream) Send(msg Message) error {
	if s.isClosed.Load() {
		return ErrStreamClosed
	}
	return msg.writeTo(s.lw, s.req.id)
}

// SendMsg encodes v and sends it as the next stream element.
func (s *Stream) SendMsg(v any) error {
	b, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	return s.Send(NewMessage(b))
}

// IsClosed returns whether the stream is closed.
func (s *Stream) IsClosed() bool {
	return s.isClosed.Load()
}

// Status returns the status the stream closed with; 0 while open.
func (s *Stream) Status() byte {
	return byte(s.status.Load())
}

// Close terminates the stream successfully with an empty close frame.
func (s *Stream) Close() error {
	return s.closeWithStatus(StatusOK, nil)
}

// CloseOK terminates the stream successfully, carrying the encoded reply in
// the close frame. This is how a client-streaming call returns its single
// response.
func (s *Stream) CloseOK(v any) error {
	b, err := s.codec.Encode(v)
	if err != nil {
		return s.closeWithStatus(StatusInternal, []byte("encode reply: "+err.Error()))
	}
	return s.closeWithStatus(StatusOK, b)
}

// CloseError terminates the stream with the status and message err carries.
func (s *Stream) CloseError(err error) error {
	status, msg := statusFromError(err)
	return s.closeWithStatus(status, []byte(msg))
}

func (s *Stream) closeWithStatus(status byte, body []byte) error {
	if s.isClosed.Swap(true) {
		return ErrStreamClosed
	}
	s.status.Store(uint32(status))
	s.q.close(ErrStreamClosed)
	if s.onClose != nil {
		s.onClose()
	}
	resp := &Response{
		reqID:  s.req.id,
		flags:  FlagStreamMsg | MsgFlagClose,
		Status: status,
		Body:   body,
	}
	_, err := resp.WriteTo(s.lw.LockWriter())
	s.lw.Unlock()
	return err
}

// closeRecvd tears the stream down after the caller closed it; no close
// frame is sent back.
func (s *Stream) closeRecvd() {
	if s.isClosed.Swap(true) {
		return
	}
	s.status.Store(uint32(StatusCanceled))
	s.q.close(ErrStreamClosed)
	if s.onClose != nil {
		s.onClose()
	}
}
