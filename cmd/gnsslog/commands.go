package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gnsslog/internal/export"
	"gnsslog/internal/gps"
	"gnsslog/internal/web"
)

func noArgs(args []string) error {
	if len(args) > 0 {
		return usageError(fmt.Sprintf("unexpected arguments: %v", args))
	}
	return nil
}

// closedOrCancelled reports whether err just means the input ended.
func closedOrCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, gps.ErrClosed) || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

func cmdRaw(ctx context.Context, a *app, args []string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	src, err := a.openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	for n := 0; a.opts.limit <= 0 || n < a.opts.limit; {
		line, err := src.ReadLine(ctx)
		if errors.Is(err, gps.ErrNoData) {
			continue
		}
		if err != nil {
			if closedOrCancelled(ctx, err) {
				return nil
			}
			return err
		}
		fmt.Fprintf(a.stdout, "%s\n", bytes.TrimRight(line, "\r\n"))
		n++
	}
	return nil
}

func cmdMonitor(ctx context.Context, a *app, args []string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	p, err := a.openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	for n := 0; a.opts.limit <= 0 || n < a.opts.limit; n++ {
		pkg, err := p.framer.Next(ctx)
		if err != nil {
			if closedOrCancelled(ctx, err) {
				a.log.Info("monitor stopped", "waypoints", n, "stats", p.framer.Stats())
				return nil
			}
			return err
		}
		p.asm.Assemble(pkg).Show(a.stdout)
		fmt.Fprintln(a.stdout)
	}
	return nil
}

func cmdFix(ctx context.Context, a *app, args []string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	p, err := a.openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	wp, err := gps.Acquire(ctx, p.framer, p.asm, gps.NewSpinner(a.stdout))
	if err != nil {
		return err
	}
	wp.Show(a.stdout)
	return nil
}

// limitSink cancels the run once n waypoints have passed.
func limitSink(n int, cancel context.CancelFunc) gps.Sink {
	seen := 0
	return gps.SinkFunc(func(context.Context, gps.Waypoint) error {
		seen++
		if n > 0 && seen >= n {
			cancel()
		}
		return nil
	})
}

func cmdRecord(ctx context.Context, a *app, args []string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	p, err := a.openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	first, err := gps.Acquire(ctx, p.framer, p.asm, gps.NewSpinner(a.stdout))
	if err != nil {
		if closedOrCancelled(ctx, err) {
			return nil
		}
		return err
	}

	csvw, err := export.CreateCSV(a.cfg.Record.CSVDir, time.Now(), a.log)
	if err != nil {
		return err
	}
	defer csvw.Close()
	csvw.Progress = a.stdout
	fmt.Fprintf(a.stdout, "Reading to file: %s\n", csvw.Path())

	sinks, err := a.openSinks()
	if err != nil {
		return err
	}
	defer sinks.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := web.NewStatus()
	status.SetStatic(p.src.label, sinks.session, a.cfg.Record.CSVDir)
	status.SetRecording(csvw.Path())
	hub := web.NewWaypointHub()

	all := append([]gps.Sink{csvw}, sinks.sinks...)
	all = append(all, hub)
	if a.opts.limit > 0 {
		all = append(all, limitSink(a.opts.limit, cancel))
	}
	svc := gps.NewService(p.framer, gps.ServiceOptions{
		Source: p.src.label,
		Device: p.src.device,
		Sinks:  all,
		Logger: a.log,
	})
	status.AttachGPS(svc)

	var webErr <-chan error
	if a.cfg.Web.Enable {
		if webErr, err = a.startWeb(ctx, status, hub); err != nil {
			return err
		}
	}

	a.log.Info("recording", "path", csvw.Path(), "session", sinks.session)
	svc.Deliver(ctx, first)
	if ctx.Err() == nil {
		err = svc.Run(ctx)
	}
	cancel()
	if webErr != nil {
		<-webErr
	}
	if err != nil && !errors.Is(err, gps.ErrClosed) {
		return err
	}
	a.log.Info("recording stopped", "rows", csvw.Count(), "path", csvw.Path())
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	p, err := a.openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	sinks, err := a.openSinks()
	if err != nil {
		return err
	}
	defer sinks.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := web.NewStatus()
	status.SetStatic(p.src.label, sinks.session, "")
	hub := web.NewWaypointHub()
	svc := gps.NewService(p.framer, gps.ServiceOptions{
		Source: p.src.label,
		Device: p.src.device,
		Sinks:  append(sinks.sinks, hub),
		Logger: a.log,
	})
	status.AttachGPS(svc)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	webErr, err := a.startWeb(ctx, status, hub)
	if err != nil {
		return err
	}
	select {
	case err := <-webErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web: %w", err)
		}
		return nil
	case <-svc.Done():
		// The source closed (end of replay); keep serving the last state.
		if err := svc.Err(); err != nil && !errors.Is(err, gps.ErrClosed) {
			a.log.Warn("gps pipeline stopped", "err", err)
		}
		err := <-webErr
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web: %w", err)
		}
		return nil
	}
}

func cmdAddLocalTime(_ context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return usageError("expected exactly one CSV path")
	}
	n, err := export.AddLocalTimestamp(args[0], a.cfg.Offset())
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file not found: %s", args[0])
	}
	if err != nil {
		return err
	}
	a.log.Debug("local timestamps added", "path", args[0], "rows", n, "offset", a.cfg.Offset())
	fmt.Fprintln(a.stdout, "Done.")
	return nil
}

func cmdSummary(_ context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return usageError("expected exactly one replay log path")
	}
	return printLogSummary(a.stdout, args[0])
}
