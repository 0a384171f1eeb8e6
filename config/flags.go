package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

type DriverType string

const (
	Replay    DriverType = "replay"
	KLine     DriverType = "kline"
	SocketCAN DriverType = "socket-can"
)

type UIType string

const (
	Web     UIType = "web"
	Console UIType = "console"
)

type Flags struct {
	Driver     DriverType
	UI         UIType
	Addr       string
	ConfigPath string
	// CU is the control unit to identify, a name or a bus address.
	CU               string
	RomDefs          string
	CaptureDir       string
	IdentifyInterval time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
}

type SerialFlags struct {
	SerialPort string
	BaudRate   int
}

type ReplayFlags struct {
	Path       string
	Speed      float64
	Loop       bool
	SkipFrames int
}

type SocketCANFlags struct {
	SocketCanAddr string
}

type MQTTFlags struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	TopicBase string
	QoS       int
}

type Config struct {
	*Flags
	Serial    *SerialFlags
	Replay    *ReplayFlags
	SocketCAN *SocketCANFlags
	MQTT      *MQTTFlags
}

const (
	DEFAULT_BAUD_RATE   = 4800
	DEFAULT_CAPTURE_DIR = "logs"
)

// GetFlags parses the command line, exiting on bad input like the flag package does.
func GetFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("couldn't parse config: %v", err)
	}
	return cfg
}

// Parse reads args and, when -config is given, fills every flag not set on the command line from that file.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("cuview", flag.ContinueOnError)

	flags := &Flags{}
	var driverStr, uiStr string
	fs.StringVar(&driverStr, "driver", string(KLine), "driver type to use to communicate with vehicle (kline, socket-can, replay)")
	fs.StringVar(&uiStr, "ui", string(Web), "front end to show the control unit info in (web, console)")
	fs.StringVar(&flags.Addr, "addr", ":8080", "http listen address")
	fs.StringVar(&flags.ConfigPath, "config", "", "yaml file with defaults for any of these flags")
	fs.StringVar(&flags.CU, "cu", "engine", "control unit to identify: engine, transmission or a bus address like 0x10")
	fs.StringVar(&flags.RomDefs, "rom-defs", "", "path to a RomRaider log_defs.xml used for names and supported counts")
	fs.StringVar(&flags.CaptureDir, "capture-dir", DEFAULT_CAPTURE_DIR, "directory identification captures are written to, empty to disable")
	fs.DurationVar(&flags.IdentifyInterval, "identify-interval", 5*time.Second, "how often to re-identify the control unit")
	fs.DurationVar(&flags.BackoffMin, "backoff-min", time.Second, "first retry delay after a failed identification")
	fs.DurationVar(&flags.BackoffMax, "backoff-max", 30*time.Second, "longest retry delay after failed identifications")

	serial := &SerialFlags{}
	fs.StringVar(&serial.SerialPort, "serial-port", "auto", "serial device path or 'auto'")
	fs.IntVar(&serial.BaudRate, "baud", DEFAULT_BAUD_RATE, "baud rate")

	replay := &ReplayFlags{}
	fs.StringVar(&replay.Path, "replay", "", "Path to .bin capture to replay")
	fs.Float64Var(&replay.Speed, "replay-speed", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	fs.BoolVar(&replay.Loop, "replay-loop", false, "Loop replay at EOF")
	fs.IntVar(&replay.SkipFrames, "replay-skip-frames", 0, "Skips X amount of frames from start")

	socketCAN := &SocketCANFlags{}
	fs.StringVar(&socketCAN.SocketCanAddr, "socket-can-address", "can0", "Socket CAN bus address")

	mqtt := &MQTTFlags{}
	fs.StringVar(&mqtt.Broker, "mqtt-broker", "", "MQTT broker url like tcp://127.0.0.1:1883, empty disables publishing")
	fs.StringVar(&mqtt.ClientID, "mqtt-client-id", "", "MQTT client id, generated when empty")
	fs.StringVar(&mqtt.Username, "mqtt-user", "", "MQTT username")
	fs.StringVar(&mqtt.Password, "mqtt-password", "", "MQTT password")
	fs.StringVar(&mqtt.TopicBase, "mqtt-topic-base", "subaru", "MQTT topic base")
	fs.IntVar(&mqtt.QoS, "mqtt-qos", 1, "MQTT QoS (0, 1 or 2)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if flags.ConfigPath != "" {
		if err := applyFile(fs, flags.ConfigPath); err != nil {
			return nil, err
		}
	}

	flags.Driver = DriverType(driverStr)
	flags.UI = UIType(uiStr)

	cfg := &Config{flags, serial, replay, socketCAN, mqtt}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case KLine, SocketCAN, Replay:
	default:
		return fmt.Errorf("unsupported driver type: %s", c.Driver)
	}
	switch c.UI {
	case Web, Console:
	default:
		return fmt.Errorf("unsupported ui type: %s", c.UI)
	}
	if c.Driver == Replay && c.Replay.Path == "" {
		return fmt.Errorf("replay driver needs -replay")
	}
	if c.IdentifyInterval <= 0 {
		return fmt.Errorf("bad identify interval %s", c.IdentifyInterval)
	}
	if c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin {
		return fmt.Errorf("bad backoff range %s..%s", c.BackoffMin, c.BackoffMax)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("bad mqtt qos %d", c.MQTT.QoS)
	}
	return nil
}
