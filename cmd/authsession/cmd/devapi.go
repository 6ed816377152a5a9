package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession/internal/devapi"
)

func newDevAPICmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "devapi",
		Short: "Run a local register/login API for development",
		Long: `Starts an in-memory register/login API compatible with the manager's client.
Accounts are lost when the process exits. Without a configured signing key a random
one is generated, so tokens do not survive a restart either.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			logger := cfg.Logger(cmd.ErrOrStderr())
			if addr == "" {
				addr = cfg.DevAPI.Addr
			}

			key := []byte(cfg.DevAPI.SigningKey)
			if len(key) == 0 {
				buf := make([]byte, 32)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				key = []byte(hex.EncodeToString(buf))
				logger.Warn("no devapi signing key configured; using a random one")
			}

			server, err := devapi.New(devapi.Config{
				SigningKey: key,
				TokenTTL:   cfg.DevAPI.TokenTTL.Duration,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			srv := &http.Server{
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			done := make(chan error, 1)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("server failed: %w", err)
					return
				}
				done <- nil
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Dev API listening on http://%s (token ttl %s)\n",
				ln.Addr(), cfg.DevAPI.TokenTTL.Duration)

			select {
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					return fmt.Errorf("server shutdown failed: %w", err)
				}
				return <-done
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, localhost:3000)")
	return cmd
}
