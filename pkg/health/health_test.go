package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type body struct {
	Status string
	Checks map[string]string
}

func decode(t *testing.T, w *httptest.ResponseRecorder) body {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	b := body{Checks: map[string]string{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			b.Status = s
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				b.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return b
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLivez(t *testing.T) {
	h := New()
	h.Register(Liveness, "goroutines", passing)
	h.Register(Liveness, "postgres", failing("connection refused"))

	w := serve(h.Livez)
	assert.Equal(t, http.StatusOK, w.Code, "probes start healthy")
	assert.Equal(t, "ok", decode(t, w).Status)

	p := h.probes[Liveness][1]
	ctx := context.Background()
	p.run(ctx)
	p.run(ctx)
	assert.Equal(t, http.StatusOK, serve(h.Livez).Code, "below failure threshold")

	p.run(ctx)
	w = serve(h.Livez)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	b := decode(t, w)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, b.Checks)
}

func TestReadyz_Gate(t *testing.T) {
	h := New()
	h.Register(Readiness, "redis", passing)

	w := serve(h.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode(t, w).Checks, "_gate")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(h.Readyz).Code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h.Readyz).Code)
}

func TestReadyz_OneFailing(t *testing.T) {
	h := New()
	h.Register(Readiness, "postgres", passing)
	h.Register(Readiness, "redis", failing("i/o timeout"), WithThresholds(1, 1))
	h.SetReady(true)

	h.probes[Readiness][1].run(context.Background())

	w := serve(h.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	b := decode(t, w)
	assert.Contains(t, b.Checks, "redis")
	assert.NotContains(t, b.Checks, "postgres")
	assert.False(t, h.IsReady())
}

func TestProbe_Recovery(t *testing.T) {
	down := true
	h := New()
	h.Register(Liveness, "flaky", func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	p := h.probes[Liveness][0]
	ctx := context.Background()

	p.run(ctx)
	p.run(ctx)
	assert.Equal(t, "down", p.failure())

	down = false
	p.run(ctx)
	assert.NotEmpty(t, p.failure(), "one pass is below the success threshold")
	p.run(ctx)
	assert.Empty(t, p.failure())
}

func TestProbe_Timeout(t *testing.T) {
	h := New()
	h.Register(Liveness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	h.probes[Liveness][0].run(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, serve(h.Livez).Code)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Register(Liveness, "a", failing("err"), WithThresholds(1, 1))
	h.Register(Readiness, "b", passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return serve(h.Livez).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				serve(h.Livez)
				serve(h.Readyz)
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, GoroutineCountCheck(100000)(ctx))
	require.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	require.NoError(t, PingCheck("postgres", passing)(ctx))
	require.EqualError(t, PingCheck("redis", failing("refused"))(ctx), "redis ping: refused")
}
