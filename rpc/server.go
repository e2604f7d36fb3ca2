package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	utils "github.com/johnietre/utils/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxBodyLen is the default max body length for requests.
	DefaultMaxBodyLen int64 = 1 << 22
	// DefaultMaxStreamBodyLen is the default max body length for stream
	// messages.
	DefaultMaxStreamBodyLen int64 = 1 << 16
	// DefaultPoolSize is the default number of concurrent handler
	// executions.
	DefaultPoolSize int64 = 8
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = fmt.Errorf("rpc: server closed")

// Server is a server.
type Server struct {
	// Addr is the address the server runs on.
	Addr string

	// Mux is the multiplexer used to get handlers.
	Mux Mux

	// Logger is the logger the server logs to.
	Logger *logrus.Logger

	// MaxBodyLen is the maximum request body length accepted. If 0, uses
	// DefaultMaxBodyLen.
	MaxBodyLen int64
	// MaxStreamBodyLen is the maximum stream message body length accepted.
	// If 0, uses DefaultMaxStreamBodyLen.
	MaxStreamBodyLen int64

	// ConnectTimeout is the max time for establishing the connection.
	ConnectTimeout time.Duration

	// PoolSize is the number of handler executions that may run at once.
	// Calls beyond it queue for a free slot; a streaming call holds its
	// slot until it completes. If 0, uses DefaultPoolSize.
	PoolSize int64

	// MaxConns caps accepted connections. 0 means no cap.
	MaxConns int

	middleware []Middleware
	sem        *semaphore.Weighted
	conns      *utils.Mutex[map[string]*serverConn]
	inFlight   sync.WaitGroup
	inShutdown atomic.Bool

	mtx sync.Mutex
	ln  net.Listener
}

// NewServer creates a new server.
func NewServer(addr string) *Server {
	return &Server{
		Addr:             addr,
		Mux:              NewMapMux(),
		Logger:           logrus.StandardLogger(),
		MaxBodyLen:       DefaultMaxBodyLen,
		MaxStreamBodyLen: DefaultMaxStreamBodyLen,
		PoolSize:         DefaultPoolSize,
		conns:            utils.NewMutex(make(map[string]*serverConn)),
	}
}

// Use appends middleware to the dispatch chain. Middleware runs around every
// call, streaming calls included; it must be registered before serving.
func (s *Server) Use(mws ...Middleware) {
	s.middleware = append(s.middleware, mws...)
}

// Handle adds a handler to the Mux.
func (s *Server) Handle(method string, h Handler) {
	s.Mux.Handle(method, h)
}

// HandleStream adds a stream handler to the Mux.
func (s *Server) HandleStream(method string, h StreamHandler) {
	s.Mux.HandleStream(method, h)
}

// HandleFunc adds a HandlerFunc to the Mux.
func (s *Server) HandleFunc(method string, h func(*Request, *Response)) {
	s.Mux.Handle(method, HandlerFunc(h))
}

// HandleStreamFunc adds a StreamHandlerFunc to the Mux.
func (s *Server) HandleStreamFunc(method string, h func(*Stream)) {
	s.Mux.HandleStream(method, StreamHandlerFunc(h))
}

// ListenAndServe listens on s.Addr and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown or a listener error.
func (s *Server) Serve(ln net.Listener) error {
	if s.Logger == nil {
		s.Logger = logrus.StandardLogger()
	}
	if s.MaxBodyLen <= 0 {
		s.MaxBodyLen = DefaultMaxBodyLen
	}
	if s.MaxStreamBodyLen <= 0 {
		s.MaxStreamBodyLen = DefaultMaxStreamBodyLen
	}
	if s.PoolSize <= 0 {
		s.PoolSize = DefaultPoolSize
	}
	s.sem = semaphore.NewWeighted(s.PoolSize)
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}
	s.mtx.Lock()
	s.ln = ln
	s.mtx.Unlock()
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			return err
		}
		conn := newServerConn(c)
		s.conns.Apply(func(mp *map[string]*serverConn) {
			(*mp)[conn.id] = conn
		})
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections and new calls, waits for
// in-flight calls to finish until ctx expires, then force-closes the
// remaining connections. Calls arriving on open connections during the
// drain are rejected with StatusUnavailable.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mtx.Lock()
	ln := s.ln
	s.mtx.Unlock()
	if ln != nil {
		ln.Close()
	}
	idle := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(idle)
	}()
	var err error
	select {
	case <-idle:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.closeConns()
	return err
}

func (s *Server) closeConns() {
	s.conns.Apply(func(mp *map[string]*serverConn) {
		for _, conn := range *mp {
			conn.Close()
		}
		*mp = make(map[string]*serverConn)
	})
}

type serverConn struct {
	net.Conn
	id      string
	lw      *utils.LockedWriter
	reqs    *utils.Mutex[map[uint64]context.CancelFunc]
	streams *utils.Mutex[map[uint64]*Stream]
}

func newServerConn(conn net.Conn) *serverConn {
	return &serverConn{
		Conn:    conn,
		id:      uuid.NewString(),
		lw:      utils.NewLockedWriter(conn),
		reqs:    utils.NewMutex(make(map[uint64]context.CancelFunc)),
		streams: utils.NewMutex(make(map[uint64]*Stream)),
	}
}

// Close closes the conn and tears down all its streams.
func (c *serverConn) Close() error {
	err := c.Conn.Close()
	c.streams.Apply(func(mp *map[uint64]*Stream) {
		for _, stream := range *mp {
			stream.closeRecvd()
		}
	})
	return err
}

func (s *Server) handleConn(conn *serverConn) {
	defer func() {
		conn.Close()
		s.conns.Apply(func(mp *map[string]*serverConn) {
			delete(*mp, conn.id)
		})
	}()

	var initial [preambleLen]byte
	setReadTimeout(conn, s.ConnectTimeout)
	if _, err := io.ReadFull(conn, initial[:]); err != nil {
		return
	}
	setReadTimeout(conn, 0)
	if !bytes.Equal(initial[:preambleLen-2], preambleBytes) {
		writeStatus(conn.lw, 0, 0, StatusInvalidPreamble, "")
		return
	}
	if initial[preambleLen-2] != MajorVersion {
		writeStatus(conn.lw, 0, 0, StatusBadVersion,
			fmt.Sprintf("unsupported version %d.%d", initial[preambleLen-2], initial[preambleLen-1]))
		return
	}
	if err := writeStatus(conn.lw, 0, 0, StatusOK, ""); err != nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"conn": conn.id,
		"peer": conn.RemoteAddr().String(),
	}).Debug("connection established")

	for {
		var hdr [9]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		id, flags := get8(hdr[:]), hdr[8]
		switch {
		case hasStreamMsgFlag(flags):
			if err := s.handleStreamMsg(conn, id, flags); err != nil {
				return
			}
		case hasCancelFlag(flags):
			s.handleCancel(conn, id)
		default:
			if err := s.handleRequest(conn, id, flags); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleStreamMsg(conn *serverConn, id uint64, flags byte) error {
	var lenBuf [8]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return err
	}
	msgLen := int64(get8(lenBuf[:]))
	var stream *Stream
	conn.streams.Apply(func(mp *map[uint64]*Stream) {
		stream = (*mp)[id]
	})
	if msgLen > s.MaxStreamBodyLen {
		if _, err := io.CopyN(io.Discard, conn, msgLen); err != nil {
			return err
		}
		if stream != nil {
			stream.CloseError(Errorf(
				StatusBodyTooLarge, "stream message exceeds %d bytes", s.MaxStreamBodyLen))
		}
		return nil
	}
	body := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return err
	}
	if stream == nil {
		// Stream already gone; the message raced its close.
		return nil
	}
	stream.addMsg(Message{flags: flags, Body: body})
	return nil
}

func (s *Server) handleCancel(conn *serverConn, id uint64) {
	var cancel context.CancelFunc
	conn.reqs.Apply(func(mp *map[uint64]context.CancelFunc) {
		cancel = (*mp)[id]
		delete(*mp, id)
	})
	if cancel != nil {
		cancel()
	}
}

func (s *Server) handleRequest(conn *serverConn, id uint64, flags byte) error {
	hdrLen := 11
	if hasTimeoutFlag(flags) {
		hdrLen += 8
	}
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return err
	}
	st := SerializeType(hdr[0])
	methodLen := int64(get2(hdr[1:3]))
	bodyLen := int64(get8(hdr[3:11]))
	var timeout time.Duration
	if hasTimeoutFlag(flags) {
		timeout = time.Duration(get8(hdr[11:19])) * time.Millisecond
	}

	if bodyLen > s.MaxBodyLen {
		if _, err := io.CopyN(io.Discard, conn, methodLen+bodyLen); err != nil {
			return err
		}
		return writeStatus(conn.lw, id, 0, StatusBodyTooLarge, fmt.Sprint(bodyLen))
	}
	methodBytes := make([]byte, methodLen)
	if _, err := io.ReadFull(conn, methodBytes); err != nil {
		return err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return err
	}

	codec := LookupCodec(st)
	if codec == nil {
		return writeStatus(conn.lw, id, 0, StatusBadCodec,
			fmt.Sprintf("unknown codec %d", st))
	}

	// Established connections keep reading during the shutdown drain so
	// in-flight streams can finish, but no new call may dispatch.
	if s.inShutdown.Load() {
		return writeStatus(conn.lw, id, 0, StatusUnavailable, "server shutting down")
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	req := newRequest(
		id, ctx, conn.id, conn.RemoteAddr().String(),
		flags, string(methodBytes), codec, body,
	)
	if hasStreamFlag(flags) {
		s.dispatchStream(conn, req, cancel)
	} else {
		s.dispatchUnary(conn, req, cancel)
	}
	return nil
}

func (s *Server) dispatchUnary(conn *serverConn, req *Request, cancel context.CancelFunc) {
	h := s.Mux.GetHandler(req.Method)
	if h == nil {
		cancel()
		status, msg := StatusNotFound, "unknown method "+req.Method
		if s.Mux.GetStreamHandler(req.Method) != nil {
			status, msg = StatusIsStream, req.Method+" is a streaming method"
		}
		if err := writeStatus(conn.lw, req.id, 0, status, msg); err != nil {
			s.Logger.WithError(err).Debug("write response failed")
		}
		return
	}
	conn.reqs.Apply(func(mp *map[uint64]context.CancelFunc) {
		(*mp)[req.id] = cancel
	})
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer cancel()
		defer conn.reqs.Apply(func(mp *map[uint64]context.CancelFunc) {
			delete(*mp, req.id)
		})
		resp := newResponse(req.id, 0, req.codec)
		if err := s.sem.Acquire(req.ctx, 1); err != nil {
			resp.SetError(err)
		} else {
			func() {
				defer s.sem.Release(1)
				chain(s.guard(h), s.middleware).Handle(req, resp)
			}()
		}
		if _, err := resp.WriteTo(conn.lw.LockWriter()); err != nil {
			s.Logger.WithError(err).Debug("write response failed")
		}
		conn.lw.Unlock()
	}()
}

// guard runs the handler on its own goroutine against a shadow response so
// a deadline can preempt the call without racing the handler's writes. A
// panicking handler becomes StatusInternal; the worker survives.
func (s *Server) guard(h Handler) Handler {
	return HandlerFunc(func(req *Request, resp *Response) {
		shadow := newResponse(req.id, resp.flags, req.codec)
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if v := recover(); v != nil {
					s.Logger.WithFields(logrus.Fields{
						"method": req.Method,
						"panic":  v,
					}).Error("handler panicked")
					shadow.Status = StatusInternal
					shadow.Body = []byte("internal error")
				}
			}()
			h.Handle(req, shadow)
		}()
		select {
		case <-done:
			resp.Status, resp.Body = shadow.Status, shadow.Body
		case <-req.Context().Done():
			resp.SetError(req.Context().Err())
		}
	})
}

func (s *Server) dispatchStream(conn *serverConn, req *Request, cancel context.CancelFunc) {
	sh := s.Mux.GetStreamHandler(req.Method)
	if sh == nil {
		cancel()
		status, msg := StatusNotFound, "unknown method "+req.Method
		if s.Mux.GetHandler(req.Method) != nil {
			status, msg = StatusNotStream, req.Method+" is not a streaming method"
		}
		if err := writeStatus(conn.lw, req.id, 0, status, msg); err != nil {
			s.Logger.WithError(err).Debug("write response failed")
		}
		return
	}
	// Ack the stream open before the handler runs; handler-level failures
	// arrive on the close frame instead.
	if err := writeStatus(conn.lw, req.id, 0, StatusOK, ""); err != nil {
		cancel()
		return
	}
	stream := newStream(conn.lw, req, func() {
		conn.streams.Apply(func(mp *map[uint64]*Stream) {
			delete(*mp, req.id)
		})
	})
	conn.streams.Apply(func(mp *map[uint64]*Stream) {
		(*mp)[req.id] = stream
	})
	conn.reqs.Apply(func(mp *map[uint64]context.CancelFunc) {
		(*mp)[req.id] = cancel
	})
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer cancel()
		defer conn.reqs.Apply(func(mp *map[uint64]context.CancelFunc) {
			delete(*mp, req.id)
		})
		if err := s.sem.Acquire(req.ctx, 1); err != nil {
			stream.CloseError(err)
			return
		}
		defer s.sem.Release(1)
		// Deadline and cancel frames end the stream even mid-emission.
		go func() {
			<-req.ctx.Done()
			if !stream.IsClosed() {
				stream.CloseError(req.ctx.Err())
			}
		}()
		open := HandlerFunc(func(req *Request, resp *Response) {
			defer func() {
				if v := recover(); v != nil {
					s.Logger.WithFields(logrus.Fields{
						"method": req.Method,
						"panic":  v,
					}).Error("stream handler panicked")
					stream.CloseError(Errorf(StatusInternal, "internal error"))
				}
				resp.Status = stream.Status()
			}()
			sh.HandleStream(stream)
			if !stream.IsClosed() {
				stream.Close()
			}
		})
		resp := newResponse(req.id, FlagStreamMsg|MsgFlagClose, req.codec)
		chain(open, s.middleware).Handle(req, resp)
	}()
}

func setReadTimeout(conn net.Conn, dur time.Duration) {
	if dur <= 0 {
		conn.SetReadDeadline(time.Time{})
	} else {
		conn.SetReadDeadline(time.Now().Add(dur))
	}
}
