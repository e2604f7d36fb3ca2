package rpc

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Logging returns middleware that logs every call the dispatcher routes:
// one line when the request arrives, one when it completes, tagged with the
// method, peer address, connection ID, duration, and final status. Failures
// log at warn (caller errors) or error (server errors).
func Logging(log *logrus.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) {
			start := time.Now()
			entry := log.WithFields(logrus.Fields{
				"method": req.Method,
				"peer":   req.RemoteAddr,
				"conn":   req.ConnID,
			})
			if req.IsStream() {
				entry = entry.WithField("stream", true)
			}
			entry.Info("request")
			next.Handle(req, resp)
			entry = entry.WithFields(logrus.Fields{
				"status":   StatusText(resp.Status),
				"duration": time.Since(start).Round(time.Microsecond).String(),
			})
			switch {
			case resp.Status == StatusOK:
				entry.Info("reply")
			case resp.Status < StatusInternal:
				entry.Warn("reply")
			default:
				entry.Error("reply")
			}
		})
	}
}
