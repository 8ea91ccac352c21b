package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/skyswordx/gripperd/calib"
	"github.com/skyswordx/gripperd/generichttp"
	"github.com/skyswordx/gripperd/gripper"
	"github.com/skyswordx/gripperd/lxservo"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "gripperd.yml"
	k              = koanf.New(".")
)

type config struct {
	Addr       string `yaml:"Addr"`
	Root       string `yaml:"Root"`
	SerialPort string `yaml:"SerialPort"`
	Sim        bool   `yaml:"Sim"`
	CalibFile  string `yaml:"CalibFile"`
	Grippers   []int  `yaml:"Grippers"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:       ":8001",
		Root:       "/",
		SerialPort: "/dev/ttyUSB0",
		Sim:        false,
		CalibFile:  "grippers.yaml",
		Grippers:   []int{0},
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `gripperd exposes control of serial bus servo grippers over HTTP.
This enables a server-client architecture, and the clients can leverage
the excellent HTTP libraries for any programming language, instead of
custom socket logic.

Usage:
	gripperd <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `gripperd is amenable to configuration via its .yml file.  For a primer
on YAML, see https://yaml.org/start.html

When no configuration is provided, the defaults are used.  The command
mkconf generates the configuration file with the default values.

Grippers lists the bus ids of the actuators to probe and drive; each one
gets its own slot in the controller and its own set of HTTP routes.

Sim replaces the physical bus with a simulated one, which is useful for
exercising clients without hardware attached.

CalibFile points at the persisted calibration (angle mappings and control
tuning).  If the file is missing the built-in defaults are used; if it is
present but corrupt, gripperd refuses to start rather than drive hardware
with garbage parameters.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("gripperd version %v\n", Version)
}

// probeBus checks every configured servo answers on the bus, with a spinner
// since a dead bus takes a timeout per servo to diagnose
func probeBus(bus *lxservo.Bus, ids []int) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " probing servo bus",
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
	})
	if err != nil {
		return err
	}
	spinner.Start()
	for _, id := range ids {
		spinner.Message(fmt.Sprintf("servo %d", id))
		if err := bus.Probe(id); err != nil {
			spinner.StopFailMessage(fmt.Sprintf("servo %d did not answer", id))
			spinner.StopFail()
			return err
		}
	}
	spinner.Stop()
	return nil
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)

	for _, id := range cfg.Grippers {
		if id < 0 || id >= gripper.MaxGrippers {
			log.Fatalf("gripper id %d out of range [0,%d)", id, gripper.MaxGrippers)
		}
	}

	var (
		transport gripper.Transport
		health    gripper.Telemetry
	)
	if cfg.Sim {
		log.Println("simulated bus, no hardware will move")
		sim := lxservo.NewSimulator(gripper.DefaultMapping().ClosedAngle)
		transport, health = sim, sim
	} else {
		bus := lxservo.NewSerialBus(cfg.SerialPort)
		if err := probeBus(bus, cfg.Grippers); err != nil {
			log.Fatal(err)
		}
		transport, health = bus, bus
	}

	ctrl := gripper.New(transport)

	// persisted calibration overrides the built-in defaults
	cal, err := calib.Load(cfg.CalibFile)
	switch {
	case err == nil:
		for id, rec := range cal.Grippers {
			if err := ctrl.ConfigureMapping(id, rec.Mapping); err != nil {
				log.Fatalf("calibration for gripper %d rejected: %v", id, err)
			}
			if err := ctrl.SetControlParams(id, rec.Params); err != nil {
				log.Fatalf("tuning for gripper %d rejected: %v", id, err)
			}
		}
		log.Printf("loaded calibration for %d grippers from %s", len(cal.Grippers), cfg.CalibFile)
	case os.IsNotExist(err):
		log.Printf("no calibration at %s, using defaults", cfg.CalibFile)
	default:
		log.Fatalf("error loading calibration: %v", err)
	}

	go func() {
		err := ctrl.Run(context.Background())
		log.Fatalf("control loop exited: %v", err)
	}()

	w := gripper.NewHTTPGripper(ctrl, health)
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	rootMux := chi.NewRouter()
	mux := chi.NewRouter()
	w.RT().Bind(mux)
	if hndlrS == "" {
		rootMux = mux
	} else {
		rootMux.Mount(hndlrS, mux)
	}
	log.Println("now listening for requests at", cfg.Addr+cfg.Root)
	log.Fatal(http.ListenAndServe(cfg.Addr, rootMux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
