package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/metrics/export/otel"
	"github.com/MrEthical07/authsession/metrics/export/prometheus"
)

var errNotLoggedIn = errors.New("not logged in")

func newWatchCmd(opts *options) *cobra.Command {
	var metricsListen string
	var summary bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Restore the session and block until it ends",
		Long: `Restores the persisted session, prints every state change and exits once the
session ends at token expiry. Interrupting the command leaves the session in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			// The manager navigates last when a session ends, after its metrics and
			// audit events are recorded.
			ended := make(chan struct{})
			var once sync.Once
			nav := authsession.NavigatorFunc(func(path string) {
				fmt.Fprintf(out, "Redirect to %s\n", path)
				once.Do(func() { close(ended) })
			})
			a, err := openApp(ctx, opts, cmd.ErrOrStderr(), nav)
			if err != nil {
				return err
			}
			defer a.close()

			if !a.manager.Restore(ctx) {
				return errNotLoggedIn
			}

			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer provider.Shutdown(context.WithoutCancel(ctx))
			exporter, err := otel.NewExporter(provider.Meter("authsession"), a.manager)
			if err != nil {
				return err
			}
			defer exporter.Close()

			listen := metricsListen
			if listen == "" {
				listen = opts.cfg.Metrics.Listen
			}
			if listen != "" {
				stop, err := serveMetrics(listen, a)
				if err != nil {
					return err
				}
				defer stop()
			}

			cancel := a.manager.Subject().Subscribe(func(st authsession.State) {
				printTransition(out, st)
			})
			defer cancel()

			select {
			case <-ended:
			case <-ctx.Done():
				fmt.Fprintln(out, "Stopped watching; session left in place.")
			}

			if summary {
				return writeSummary(context.WithoutCancel(ctx), out, reader)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while watching")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print collected session metrics on exit")
	return cmd
}

func printTransition(w io.Writer, st authsession.State) {
	ts := time.Now().Format(time.TimeOnly)
	if u, ok := st.User(); ok {
		fmt.Fprintf(w, "[%s] logged in as %s (version %d)\n", ts, u.DisplayName(), st.Version)
		return
	}
	fmt.Fprintf(w, "[%s] logged out (version %d)\n", ts, st.Version)
}

// serveMetrics mounts the Prometheus exporter on listen. The returned stop function
// shuts the server down.
func serveMetrics(listen string, a *app) (func(), error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", prometheus.NewExporter(a.manager).Handler())
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "err", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// writeSummary collects once from reader and prints every non-zero integer series.
func writeSummary(ctx context.Context, w io.Writer, reader sdkmetric.Reader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}

	names := make([]string, 0, len(values))
	for name, v := range values {
		if v != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s %d\n", name, values[name])
	}
	return nil
}
