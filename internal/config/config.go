package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"gnsslog/internal/gps"
	"gnsslog/internal/nmea"
)

const (
	SourceSerial = "serial"
	SourceGPSD   = "gpsd"
	SourceReplay = "replay"
	SourceSim    = "sim"
)

type Config struct {
	GPS    GPSConfig    `yaml:"gps"`
	Replay ReplayConfig `yaml:"replay"`
	Sim    SimConfig    `yaml:"sim"`
	Record RecordConfig `yaml:"record"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	UDP    UDPConfig    `yaml:"udp"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`

	// LocalOffset is added to UTC for the timestamp_cet column. Absent means
	// nmea.DefaultLocalOffset; an explicit 0s is honored.
	LocalOffset *time.Duration `yaml:"local_offset"`
}

type GPSConfig struct {
	Source      string        `yaml:"source"`
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	StopBits    int           `yaml:"stop_bits"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Driver      string        `yaml:"driver"`
	Termination string        `yaml:"termination"`
	Talkers     []string      `yaml:"talkers"`
	GPSDAddr    string        `yaml:"gpsd_addr"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
	LockAfter    int           `yaml:"lock_after"`
	Satellites   int           `yaml:"satellites"`
	// Scenario, when set, replaces the circuit with a keyframe script.
	Scenario string `yaml:"scenario"`
	Loop     bool   `yaml:"loop"`
}

type RecordConfig struct {
	CSVDir     string `yaml:"csv_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	// RecordRaw is a replay log path capturing every raw line read.
	RecordRaw string `yaml:"record_raw"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := cfg.DefaultAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates the YAML file at path. Unknown keys are errors.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.DefaultAndValidate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Offset is the effective local-time offset.
func (c Config) Offset() time.Duration {
	if c.LocalOffset == nil {
		return nmea.DefaultLocalOffset
	}
	return *c.LocalOffset
}

// DefaultAndValidate fills zero values with defaults and rejects
// inconsistent settings.
func (c *Config) DefaultAndValidate() error {
	c.GPS.Source = strings.ToLower(strings.TrimSpace(c.GPS.Source))
	switch c.GPS.Source {
	case "":
		c.GPS.Source = SourceSerial
	case SourceSerial, SourceGPSD, SourceReplay, SourceSim:
	default:
		return fmt.Errorf("gps.source must be one of serial, gpsd, replay, sim")
	}

	if c.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = gps.DefaultBaud
	}
	if c.GPS.StopBits == 0 {
		c.GPS.StopBits = gps.DefaultStopBits
	}
	if c.GPS.StopBits != 1 && c.GPS.StopBits != 2 {
		return fmt.Errorf("gps.stop_bits must be 1 or 2")
	}
	if c.GPS.ReadTimeout < 0 {
		return fmt.Errorf("gps.read_timeout must be > 0")
	}
	if c.GPS.ReadTimeout == 0 {
		c.GPS.ReadTimeout = gps.DefaultReadTimeout
	}
	switch strings.ToLower(strings.TrimSpace(c.GPS.Driver)) {
	case "", "termios", "bugst":
	default:
		return fmt.Errorf("gps.driver must be termios or bugst")
	}
	term, err := gps.ParseTermination(c.GPS.Termination)
	if err != nil {
		return fmt.Errorf("gps.termination: %w", err)
	}
	c.GPS.Termination = term.String()
	if len(c.GPS.Talkers) == 0 {
		c.GPS.Talkers = append([]string(nil), nmea.DefaultTalkers...)
	}
	for i, t := range c.GPS.Talkers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if len(t) != 2 || t[0] < 'A' || t[0] > 'Z' || t[1] < 'A' || t[1] > 'Z' {
			return fmt.Errorf("gps.talkers entries must be two letters, got %q", c.GPS.Talkers[i])
		}
		c.GPS.Talkers[i] = t
	}

	if c.GPS.Source == SourceReplay && strings.TrimSpace(c.Replay.Path) == "" {
		return fmt.Errorf("replay.path is required when gps.source is replay")
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}
	if c.Replay.Speed == 0 {
		c.Replay.Speed = 1
	}

	if c.Sim.CenterLatDeg < -90 || c.Sim.CenterLatDeg > 90 {
		return fmt.Errorf("sim.center_lat_deg must be within [-90,90]")
	}
	if c.Sim.CenterLonDeg < -180 || c.Sim.CenterLonDeg > 180 {
		return fmt.Errorf("sim.center_lon_deg must be within [-180,180]")
	}
	if c.Sim.CenterLatDeg == 0 && c.Sim.CenterLonDeg == 0 {
		// Munich.
		c.Sim.CenterLatDeg, c.Sim.CenterLonDeg = 48.1173, 11.5167
	}
	if c.Sim.LockAfter < 0 {
		return fmt.Errorf("sim.lock_after must be >= 0")
	}
	if c.Sim.Period <= 0 {
		c.Sim.Period = 120 * time.Second
	}
	if c.Sim.Interval <= 0 {
		c.Sim.Interval = time.Second
	}
	if c.Sim.RadiusM <= 0 {
		c.Sim.RadiusM = 500
	}

	if c.Record.CSVDir == "" {
		c.Record.CSVDir = "."
	}

	if c.MQTT.Enable && strings.TrimSpace(c.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if c.UDP.Enable && strings.TrimSpace(c.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// SerialConfig maps the gps section onto the serial opener.
func (c Config) SerialConfig() gps.SerialConfig {
	return gps.SerialConfig{
		Device:      c.GPS.Device,
		Baud:        c.GPS.Baud,
		StopBits:    c.GPS.StopBits,
		ReadTimeout: c.GPS.ReadTimeout,
		Driver:      c.GPS.Driver,
	}
}

// FramerOptions maps the gps section onto the framer. The termination was
// validated by DefaultAndValidate.
func (c Config) FramerOptions(logger *log.Logger) gps.FramerOptions {
	term, _ := gps.ParseTermination(c.GPS.Termination)
	return gps.FramerOptions{Termination: term, Talkers: c.GPS.Talkers, Logger: logger}
}
