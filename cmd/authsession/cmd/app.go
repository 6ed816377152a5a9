package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/authsession"
)

// app is a manager wired from the loaded configuration, plus everything that must be
// released when the command ends.
type app struct {
	manager *authsession.Manager
	logger  *slog.Logger
	closers []func() error
}

func openApp(ctx context.Context, opts *options, stderr io.Writer, nav authsession.Navigator) (*app, error) {
	cfg := opts.cfg
	a := &app{logger: cfg.Logger(stderr)}

	store, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	sink, closeSink, err := cfg.AuditSink(stderr)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeSink)

	if nav == nil {
		nav = authsession.NavigatorFunc(func(path string) {
			a.logger.Debug("navigate", "path", path)
		})
	}

	m, err := authsession.New().
		WithConfig(cfg.Manager()).
		WithStore(store).
		WithAuditSink(sink).
		WithNavigator(nav).
		WithLogger(a.logger).
		Build()
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.manager = m
	return a, nil
}

// close stops the manager first so pending audit events reach their sink, then
// releases the store and sink in reverse order.
func (a *app) close() error {
	if a.manager != nil {
		a.manager.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
