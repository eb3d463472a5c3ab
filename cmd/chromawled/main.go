package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/chromawled/internal/app"
	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/config"
	diag "github.com/coreman2200/chromawled/internal/diagnostics"
	"github.com/coreman2200/chromawled/internal/led"
	"github.com/coreman2200/chromawled/internal/render"
	"github.com/coreman2200/chromawled/internal/wled"
	"github.com/coreman2200/chromawled/internal/ws"
)

func main() {
	// ---- Flags (remain usable; config.yaml can override them) ----
	var (
		driver       = flag.String("driver", "serial", "driver: serial | spi | sim")
		port         = flag.String("port", "/dev/ttyUSB0", "serial port of the WLED controller")
		baud         = flag.Int("baud", led.DefaultBaud, "serial baud rate")
		timeoutMs    = flag.Int("timeout-ms", int(led.DefaultReadTimeout/time.Millisecond), "LED-count discovery read timeout (ms)")
		spiPort      = flag.String("spi", "", "SPI port for -driver=spi (empty = first)")
		leds         = flag.Int("leds", 60, "LED count for the spi and sim drivers")
		animRate     = flag.String("animation-rate", app.DefaultAnimationRate.String(), "animation tick rate")
		txRate       = flag.String("transmit-rate", app.DefaultTransmitRate.String(), "transmit tick rate")
		keepalive    = flag.Int("keepalive-ticks", app.DefaultKeepaliveTicks, "transmit ticks before an unchanged frame is resent")
		waveModel    = flag.String("wave-model", string(render.HSL), "wave colour model: hsl | hsluv")
		initialState = flag.String("state", "auto", "start-up mode: auto | wave | chroma")
		addr         = flag.String("addr", "", "control surface listen address (empty = disabled)")
		configPath   = flag.String("config", "config.yaml", "path to config.yaml")
		logLevel     = flag.String("log-level", "info", "debug | info | warn | error")
		saveConfig   = flag.Bool("save-config", false, "write the effective config to -config and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Err(err).Str("level", *logLevel).Msg("bad log level; using info")
	}

	// ---- Effective config (config.yaml overrides flags where set) ----
	cfg := &config.Config{
		Driver:         *driver,
		Serial:         config.Serial{Port: *port, Baud: *baud, TimeoutMs: *timeoutMs},
		SPI:            config.SPI{Port: *spiPort},
		LEDs:           *leds,
		AnimationRate:  *animRate,
		TransmitRate:   *txRate,
		KeepaliveTicks: *keepalive,
		Wave:           config.Wave{StepDeg: render.DefaultHueStep, StartHue: render.DefaultStartHue, Model: *waveModel},
		InitialState:   *initialState,
		Addr:           *addr,
	}
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg.Override(c)
	}

	if *saveConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config save failed")
		}
		log.Info().Str("path", *configPath).Msg("config written")
		return
	}

	animation, transmit, err := cfg.Rates()
	if err != nil {
		log.Fatal().Err(err).Msg("bad rate")
	}

	// ---- Driver selection and LED-count handshake ----
	drv, count := openDriver(cfg)
	defer drv.Close()
	log.Info().Str("driver", cfg.Driver).Int("leds", count).Msg("controller ready")

	opts := app.DefaultOptions()
	opts.LEDs = count
	opts.AnimationRate = animation
	opts.TransmitRate = transmit
	opts.KeepaliveTicks = cfg.KeepaliveTicks
	opts.WaveStartHue = cfg.Wave.StartHue
	opts.WaveStep = cfg.Wave.StepDeg
	opts.WaveModel = render.ColorModel(cfg.Wave.Model)
	if cfg.InitialState != "" && cfg.InitialState != "auto" {
		s, err := bridge.ParseState(cfg.InitialState)
		if err != nil {
			log.Fatal().Err(err).Msg("bad initial state")
		}
		opts.InitialOverride = &s
	}

	var surface *ws.State
	opts.OnFlush = func(frame []byte) {
		if surface != nil {
			surface.Preview(frame)
		}
	}

	core, err := app.InitCore(drv, opts)
	if err != nil {
		log.Fatal().Err(err).Int("leds", count).Msg("cannot start render pipeline")
	}

	// ---- Control surface ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var srv *http.Server
	if cfg.Addr != "" {
		surface = ws.NewState(core, core.Bridge)
		surface.Driver = cfg.Driver

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", surface.HandleFramesWS)
		mux.HandleFunc("/diag", surface.HandleDiagWS)
		mux.HandleFunc("/control", surface.HandleControlWS)
		mux.HandleFunc("/health", surface.HandleHealth)
		srv = &http.Server{
			Addr:         cfg.Addr,
			Handler:      withCORS(mux),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go surface.Run(ctx)
		go func() {
			log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http server crashed")
			}
		}()
	}

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-ch
		log.Info().Str("signal", s.String()).Msg("shutting down")
		core.Shutdown()
	}()

	runErr := core.Run()
	if srv != nil {
		if runErr != nil {
			surface.PushDiag(diag.TransportFailure(runErr))
		}
		_ = srv.Close()
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("render pipeline aborted")
	}
	log.Info().Msg("bye")
}

type querier interface {
	led.Driver
	wled.Querier
}

// openDriver opens the configured transport and works out the LED count. The
// serial controller is asked; spi and sim take the count from the config.
func openDriver(cfg *config.Config) (led.Driver, int) {
	var q querier
	switch cfg.Driver {
	case "serial":
		s, err := led.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, time.Duration(cfg.Serial.TimeoutMs)*time.Millisecond)
		if err != nil {
			log.Fatal().Err(err).Str("port", cfg.Serial.Port).Int("baud", cfg.Serial.Baud).Msg("serial open failed")
		}
		q = s

	case "spi":
		d, err := led.OpenNRZ(cfg.SPI.Port, cfg.LEDs)
		if err != nil {
			log.Fatal().Err(err).Str("dev", cfg.SPI.Port).Stringer("freq", led.Freq).Msg("SPI init failed")
		}
		return d, cfg.LEDs

	case "sim":
		q = led.NewSim(cfg.LEDs)

	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown driver; using SIM")
		cfg.Driver = "sim"
		q = led.NewSim(cfg.LEDs)
	}

	n, err := wled.Discover(q)
	if err != nil {
		log.Fatal().Err(err).Msg("LED-count discovery failed")
	}
	return q, n
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
