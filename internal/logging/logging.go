package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing JSON in release mode and text otherwise.
func New(level, ginMode string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, ginMode)
}

func NewWithOutput(out io.Writer, level, ginMode string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if ginMode == gin.ReleaseMode {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		log.WithField("level", level).Warn("unknown log level, using info")
	}
	log.SetLevel(lvl)
	return log
}

// FromContext returns an entry tagged with the request id of c.
func FromContext(log logrus.FieldLogger, c *gin.Context) *logrus.Entry {
	return log.WithField("request_id", requestid.Get(c))
}

// Middleware logs one line per request after the handler chain has run.
func Middleware(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := FromContext(log, c).WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"bytes_in":   c.Request.ContentLength,
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
