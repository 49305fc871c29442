package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"

	"gnsslog/internal/config"
	"gnsslog/internal/export"
	"gnsslog/internal/gps"
	"gnsslog/internal/replay"
	"gnsslog/internal/sim"
	"gnsslog/internal/udp"
	"gnsslog/internal/web"
)

// source is an opened line source plus the labels shown in status and logs.
type source struct {
	gps.LineSource
	label  string
	device string
	closer io.Closer
}

func (s source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (a *app) openSource() (source, error) {
	cfg := a.cfg
	switch cfg.GPS.Source {
	case config.SourceSerial:
		rc, resolved, err := gps.OpenSerial(cfg.SerialConfig())
		if err != nil {
			return source{}, err
		}
		a.log.Info("gps serial opened", "device", resolved.Device, "baud", resolved.Baud,
			"stop_bits", resolved.StopBits, "driver", resolved.Driver)
		ps := gps.NewPortSource(rc)
		return source{LineSource: ps, label: cfg.GPS.Source, device: resolved.Device, closer: ps}, nil

	case config.SourceGPSD:
		gs := gps.NewGPSDSource(cfg.GPS.GPSDAddr, cfg.GPS.ReadTimeout, a.log)
		return source{LineSource: gs, label: cfg.GPS.Source, device: gs.Addr(), closer: gs}, nil

	case config.SourceReplay:
		rs, err := replay.OpenSource(cfg.Replay.Path, cfg.Replay.Speed, cfg.Replay.Loop)
		if err != nil {
			return source{}, err
		}
		a.log.Info("replaying", "path", cfg.Replay.Path, "speed", cfg.Replay.Speed, "loop", cfg.Replay.Loop)
		return source{LineSource: rs, label: cfg.GPS.Source, device: cfg.Replay.Path}, nil

	case config.SourceSim:
		tr, err := a.trajectory()
		if err != nil {
			return source{}, err
		}
		ss := sim.NewSource(tr, cfg.Sim.LockAfter)
		ss.Interval = cfg.Sim.Interval
		ss.Receiver.Talker = cfg.GPS.Talkers[0]
		return source{LineSource: ss, label: cfg.GPS.Source, device: "simulator"}, nil
	}
	return source{}, fmt.Errorf("unsupported gps.source %q", cfg.GPS.Source)
}

func (a *app) trajectory() (sim.Trajectory, error) {
	sc := a.cfg.Sim
	if sc.Scenario != "" {
		script, err := sim.LoadScenarioScript(sc.Scenario)
		if err != nil {
			return nil, fmt.Errorf("sim scenario: %w", err)
		}
		s, err := sim.NewScenario(script, sc.Loop)
		if err != nil {
			return nil, fmt.Errorf("sim scenario: %w", err)
		}
		a.log.Info("sim scenario loaded", "path", sc.Scenario, "duration", s.Duration())
		return s, nil
	}
	return sim.Circuit{
		CenterLatDeg: sc.CenterLatDeg,
		CenterLonDeg: sc.CenterLonDeg,
		AltM:         sc.AltM,
		RadiusM:      sc.RadiusM,
		Period:       sc.Period,
		Satellites:   sc.Satellites,
	}, nil
}

// pipeline is an opened source with its framer, and the raw capture when
// record.record_raw is set.
type pipeline struct {
	src    source
	framer *gps.Framer
	asm    *gps.Assembler
	raw    *replay.Writer
}

func (a *app) openPipeline() (*pipeline, error) {
	src, err := a.openSource()
	if err != nil {
		return nil, err
	}
	p := &pipeline{src: src, asm: gps.NewAssembler(a.log)}
	opts := a.cfg.FramerOptions(a.log)
	if path := a.cfg.Record.RecordRaw; path != "" {
		w, err := replay.CreateWriter(path)
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("raw capture: %w", err)
		}
		a.log.Info("capturing raw lines", "path", path)
		p.raw = w
		opts.OnLine = w.Tap(func(err error) { a.log.Warn("raw capture write failed", "err", err) })
	}
	p.framer = gps.NewFramer(src, opts)
	return p, nil
}

func (p *pipeline) Close() error {
	err := p.src.Close()
	if p.raw != nil {
		if rerr := p.raw.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// sinkSet holds the configured optional sinks and how to release them.
type sinkSet struct {
	session string
	sinks   []gps.Sink
	closers []func() error
}

func (s *sinkSet) add(sink gps.Sink, closer func() error) {
	s.sinks = append(s.sinks, sink)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
}

func (s *sinkSet) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSinks opens the SQLite, MQTT and UDP sinks the config enables. All of
// them share one session id.
func (a *app) openSinks() (*sinkSet, error) {
	cfg := a.cfg
	set := &sinkSet{session: uuid.NewString()}

	if cfg.Record.SQLitePath != "" {
		st, err := export.OpenSQLite(cfg.Record.SQLitePath, set.session)
		if err != nil {
			return nil, err
		}
		a.log.Info("sqlite store opened", "path", cfg.Record.SQLitePath, "session", set.session)
		set.add(st, st.Close)
	}
	if cfg.MQTT.Enable {
		pub, err := export.DialMQTT(export.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Session:  set.session,
		})
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		a.log.Info("mqtt connected", "broker", cfg.MQTT.Broker, "topic", pub.Topic())
		set.add(pub, pub.Close)
	}
	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		a.log.Info("udp broadcasting", "dest", b.Dest())
		set.add(udp.WaypointSink{B: b, Session: set.session}, b.Close)
	}
	return set, nil
}

// startWeb binds the status listener and serves it in the background; the
// returned channel yields the server's exit error.
func (a *app) startWeb(ctx context.Context, status *web.Status, hub *web.WaypointHub) (<-chan error, error) {
	ln, err := net.Listen("tcp", a.cfg.Web.Listen)
	if err != nil {
		return nil, fmt.Errorf("web listen: %w", err)
	}
	a.log.Info("web status listening", "addr", ln.Addr().String())
	if a.onWebListen != nil {
		a.onWebListen(ln.Addr())
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- web.ServeListener(ctx, ln, web.Handler(status, hub, a.logs, a.log))
	}()
	return errCh, nil
}
