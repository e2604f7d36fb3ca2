package rpc

// Handler handles a unary call.
type Handler interface {
	// Takes a request and modifies the response.
	Handle(*Request, *Response)
}

// StreamHandler handles a streaming call.
type StreamHandler interface {
	HandleStream(*Stream)
}

type HandlerFunc func(*Request, *Response)

func (h HandlerFunc) Handle(req *Request, resp *Response) {
	h(req, resp)
}

type StreamHandlerFunc func(*Stream)

func (h StreamHandlerFunc) HandleStream(stream *Stream) {
	h(stream)
}

// Middleware wraps a handler. The dispatcher runs every call (stream opens
// included) through the server's middleware chain, so cross-cutting concerns
// like logging stay out of the handlers themselves.
type Middleware func(next Handler) Handler

func chain(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Mux routes method names to handlers.
type Mux interface {
	Handle(string, Handler)
	HandleStream(string, StreamHandler)
	GetHandler(string) Handler
	GetStreamHandler(string) StreamHandler
}

// MapMux is a Mux backed by maps. Registration is not safe for concurrent
// use; register everything before serving.
type MapMux struct {
	handlers       map[string]Handler
	streamHandlers map[string]StreamHandler
}

func NewMapMux() MapMux {
	return MapMux{
		handlers:       make(map[string]Handler),
		streamHandlers: make(map[string]StreamHandler),
	}
}

func (mm MapMux) Handle(method string, h Handler) {
	mm.handlers[method] = h
}

func (mm MapMux) HandleStream(method string, h StreamHandler) {
	mm.streamHandlers[method] = h
}

func (mm MapMux) HandleFunc(method string, f func(*Request, *Response)) {
	mm.handlers[method] = HandlerFunc(f)
}

func (mm MapMux) HandleStreamFunc(method string, f func(*Stream)) {
	mm.streamHandlers[method] = StreamHandlerFunc(f)
}

func (mm MapMux) GetHandler(method string) Handler {
	return mm.handlers[method]
}

func (mm MapMux) GetStreamHandler(method string) StreamHandler {
	return mm.streamHandlers[method]
}
