package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Ratio1/rtdb_sdk_go/internal/devseed"
	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb/mock"
)

type failConfig struct {
	rate float64
	code int
}

type sandboxFlags struct {
	addr    string
	seed    string
	secret  string
	latency time.Duration
	fail    string
}

func (a *app) sandboxCmd() *cobra.Command {
	var f sandboxFlags
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Serve an in-memory database over HTTP",
		Long: `sandbox runs the mock database on a local port. Latency and failure
injection exercise client retries; /metrics exposes served request counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.applyConfig(a, cmd)
			return runSandbox(commandContext(cmd), f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default :8787)")
	cmd.Flags().StringVar(&f.seed, "seed", "", "path to JSON seed file")
	cmd.Flags().StringVar(&f.secret, "require-secret", "", "reject requests not carrying this secret")
	cmd.Flags().DurationVar(&f.latency, "latency", 0, "artificial latency to inject per request")
	cmd.Flags().StringVar(&f.fail, "fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	return cmd
}

// applyConfig fills flags the user did not set from the config file.
func (f *sandboxFlags) applyConfig(a *app, cmd *cobra.Command) {
	sb := a.cfg.Sandbox
	if !cmd.Flags().Changed("addr") {
		f.addr = sb.Addr
	}
	if !cmd.Flags().Changed("seed") {
		f.seed = sb.Seed
	}
	if !cmd.Flags().Changed("require-secret") {
		f.secret = sb.Secret
	}
	if !cmd.Flags().Changed("latency") {
		f.latency = sb.Latency
	}
	if !cmd.Flags().Changed("fail") {
		f.fail = sb.Fail
	}
}

func newSandboxHandler(f sandboxFlags, reg prometheus.Registerer) (http.Handler, error) {
	db := mock.New(mock.WithSecret(f.secret))
	if f.seed != "" {
		entries, err := devseed.LoadSeed(f.seed)
		if err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		if err := db.Seed(entries); err != nil {
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}

	failCfg, err := parseFailConfig(f.fail)
	if err != nil {
		return nil, fmt.Errorf("parse fail flag: %w", err)
	}

	served := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "rtdb_sandbox_requests_total",
		Help: "Requests served by the sandbox, by method and status",
	}, []string{"method", "status"})

	return withMiddleware(f.latency, failCfg, rand.Float64, served, db), nil
}

func runSandbox(ctx context.Context, f sandboxFlags) error {
	reg := prometheus.NewRegistry()
	handler, err := newSandboxHandler(f, reg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:              f.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	host := f.addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	pterm.Info.Printfln("rtdb sandbox listening on %s", f.addr)
	pterm.Println()
	pterm.Println("export RTDB_RUNTIME_MODE=http")
	pterm.Printfln("export RTDB_URL=http://%s/", host)
	if f.secret != "" {
		pterm.Println("export RTDB_SECRET=<secret>")
	}
	pterm.Println()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down sandbox")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// statusRecorder captures the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withMiddleware(delay time.Duration, failCfg failConfig, roll func() float64, served *prometheus.CounterVec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			served.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		}()

		if failCfg.rate > 0 && roll() < failCfg.rate {
			status := failCfg.code
			if status == 0 {
				status = http.StatusInternalServerError
			}
			slog.Debug("failure injected", "method", r.Method, "path", r.URL.Path, "status", status)
			rec.Header().Set("Content-Type", "application/json")
			rec.WriteHeader(status)
			fmt.Fprintf(rec, `{"error":"failure injected (%d)"}`, status)
			return
		}
		slog.Debug("serving request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(rec, r)
	})
}

func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: http.StatusInternalServerError}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return failConfig{}, fmt.Errorf("invalid fail segment %q", part)
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "rate":
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return failConfig{}, err
			}
			if rate < 0 || rate > 1 {
				return failConfig{}, fmt.Errorf("fail rate %v outside [0,1]", rate)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(val)
			if err != nil {
				return failConfig{}, err
			}
			cfg.code = code
		default:
			return failConfig{}, fmt.Errorf("unknown fail key %q", key)
		}
	}
	return cfg, nil
}
