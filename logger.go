// File: logger.go
package mizu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"
)

// LogMode selects the Logger middleware's output format.
type LogMode int

const (
	// Auto picks Dev when Output is a terminal, Prod otherwise.
	Auto LogMode = iota
	// Dev emits human-readable text lines with a latency_human field.
	Dev
	// Prod emits one JSON line per request.
	Prod
)

// LoggerOptions configures the Logger middleware.
type LoggerOptions struct {
	Mode            LogMode
	Output          io.Writer
	Logger          *slog.Logger
	UserAgent       bool
	RequestIDHeader string
	RequestIDGen    func() string
	TraceExtractor  func(ctx context.Context) (traceID, spanID string, sampled bool)
}

// Logger returns request-logging middleware.
func Logger(opts LoggerOptions) Middleware {
	var log *slog.Logger
	if opts.Logger != nil {
		log = opts.Logger
	} else {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		mode := opts.Mode
		if mode == Auto {
			if isTerminal(out) {
				mode = Dev
			} else {
				mode = Prod
			}
		}
		color := supportsColorEnv()
		var handler slog.Handler
		switch {
		case mode == Dev && color:
			handler = newColorTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
		case mode == Dev:
			handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
		default:
			handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
		}
		log = slog.New(handler)
	}

	dev := opts.Logger == nil && resolvedMode(opts) == Dev

	return func(next Handler) Handler {
		return func(c *Ctx) error {
			start := time.Now()

			headerName := opts.RequestIDHeader
			if headerName == "" {
				headerName = "X-Request-Id"
			}
			reqID := c.Request().Header.Get(headerName)
			if reqID == "" && opts.RequestIDGen != nil {
				reqID = opts.RequestIDGen()
			}
			if reqID != "" {
				c.Writer().Header().Set(headerName, reqID)
			}

			err := next(c)

			dur := time.Since(start)
			status := c.StatusCode()

			attrs := []slog.Attr{
				slog.Int("status", status),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.String("host", c.Request().Host),
			}
			if reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if opts.UserAgent {
				attrs = append(attrs, slog.String("user_agent", c.Request().Header.Get("User-Agent")))
			}
			attrs = append(attrs, slog.String("query", c.Request().URL.RawQuery))
			if opts.TraceExtractor != nil {
				if tid, sid, sampled := opts.TraceExtractor(c.Context()); tid != "" {
					attrs = append(attrs,
						slog.String("trace_id", tid),
						slog.String("span_id", sid),
						slog.Bool("trace_sampled", sampled),
					)
				}
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			if dev {
				attrs = append(attrs, slog.String("latency_human", humanDuration(dur)))
			} else {
				attrs = append(attrs, slog.Int64("duration_ms", dur.Milliseconds()))
			}

			level := levelFor(status, err)
			log.LogAttrs(c.Context(), level, "request", attrs...)

			return err
		}
	}
}

func resolvedMode(opts LoggerOptions) LogMode {
	if opts.Mode != Auto {
		return opts.Mode
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if isTerminal(out) {
		return Dev
	}
	return Prod
}

func levelFor(status int, err error) slog.Level {
	switch {
	case err != nil || status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
	case d < time.Millisecond:
		return strconv.FormatFloat(float64(d)/float64(time.Microsecond), 'f', 2, 64) + "µs"
	case d < time.Second:
		return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64) + "ms"
	default:
		return strconv.FormatFloat(d.Seconds(), 'f', 3, 64) + "s"
	}
}

func attrInt(a slog.Attr) (int64, bool) {
	switch a.Value.Kind() {
	case slog.KindInt64:
		return a.Value.Int64(), true
	case slog.KindUint64:
		return int64(a.Value.Uint64()), true
	case slog.KindFloat64:
		return int64(a.Value.Float64()), true
	default:
		return 0, false
	}
}

func supportsColorEnv() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if runtime.GOOS == "windows" {
		return false
	}
	return os.Getenv("TERM") != ""
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// colorTextHandler is a minimal slog.Handler emitting ANSI-colored text
// lines, used in Dev mode when supportsColorEnv reports color support.
type colorTextHandler struct {
	out   io.Writer
	opts  *slog.HandlerOptions
	attrs []slog.Attr
}

func newColorTextHandler(out io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &colorTextHandler{out: out, opts: opts}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	const (
		reset  = "\x1b[0m"
		dim    = "\x1b[2m"
		green  = "\x1b[32m"
		yellow = "\x1b[33m"
		red    = "\x1b[31m"
	)

	fmt.Fprintf(h.out, "%s%s%s %s", dim, r.Time.Format(time.RFC3339), reset, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
	}

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "status" {
			color := green
			if v, ok := attrInt(a); ok {
				switch {
				case v >= 500:
					color = red
				case v >= 400:
					color = yellow
				}
			}
			fmt.Fprintf(h.out, " %sstatus=%v%s", color, a.Value, reset)
			return true
		}
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})

	fmt.Fprintln(h.out)
	return nil
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{out: h.out, opts: h.opts, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *colorTextHandler) WithGroup(_ string) slog.Handler {
	return h
}
