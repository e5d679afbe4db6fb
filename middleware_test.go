package dopus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := LoggingMiddleware(logger)("log_me", func(context.Context, Args) (any, error) {
		return "ok", nil
	})
	out, err := h(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	logStr := buf.String()
	assert.Contains(t, logStr, "tool start")
	assert.Contains(t, logStr, "tool end")
	assert.Contains(t, logStr, "log_me")
}

func TestLoggingMiddleware_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := LoggingMiddleware(logger)("bad", func(context.Context, Args) (any, error) {
		return "partial", errors.New("boom")
	})
	out, err := h(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, buf.String(), "tool error")
	assert.Contains(t, buf.String(), "boom")
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(5*time.Millisecond)("slow", func(ctx context.Context, _ Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	h := TimeoutMiddleware(0)("fast", func(ctx context.Context, _ Args) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	out, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestChain_OnionOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(_ string, next Handler) Handler {
			return func(ctx context.Context, args Args) (any, error) {
				order = append(order, name+" in")
				res, err := next(ctx, args)
				order = append(order, name+" out")
				return res, err
			}
		}
	}
	h := chain("t", func(context.Context, Args) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}, []Middleware{mw("outer"), mw("inner")})
	_, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer in", "inner in", "handler", "inner out", "outer out"}, order)
}
