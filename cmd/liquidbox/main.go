package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytearena/liquidbox"
	"github.com/bytearena/liquidbox/internal/config"
	"github.com/bytearena/liquidbox/internal/scene"
	"github.com/bytearena/liquidbox/internal/script"
	"github.com/bytearena/liquidbox/internal/sound"
	"github.com/bytearena/liquidbox/internal/tui"
	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "liquidbox.toml", "path to the TOML configuration")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	if cfg.Run.Renderer == "tui" {
		// Console output would tear the screen.
		log = log.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))
	}

	// 3. Create the world and build the scene
	w := liquidbox.NewWorld(liquidbox.Vec2{}, liquidbox.WithConfig(settings(cfg.World)), liquidbox.WithLogger(log))
	defer w.Destroy()

	if cfg.Run.Scene == "" {
		return fmt.Errorf("run.scene is not set in %s", *cfgPath)
	}
	sc, err := scene.Load(cfg.Run.Scene)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}
	built, err := sc.Build(w)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}
	log.Info("scene built",
		zap.String("scene", cfg.Run.Scene),
		zap.Int("bodies", w.BodyCount()),
		zap.Int("joints", w.JointCount()),
		zap.Int("particleSystems", w.ParticleSystemCount()),
		zap.Int("namedGroups", len(built.ParticleGroups)),
	)

	// 4. Contact hooks
	var listeners liquidbox.ContactListeners
	if cfg.Run.Script != "" {
		engine, err := script.NewEngine(cfg.Run.Script, log)
		if err != nil {
			return fmt.Errorf("load script: %w", err)
		}
		defer engine.Close()
		w.SetContactFilter(engine)
		listeners = append(listeners, engine)
		log.Info("script loaded", zap.String("script", cfg.Run.Script))
	}
	if cfg.Run.Sound {
		sonifier := sound.NewSonifier(cfg.Run.ImpactThreshold)
		if err := sonifier.Start(); err != nil {
			log.Warn("sound disabled", zap.Error(err))
		} else {
			defer sonifier.Close()
			listeners = append(listeners, sonifier)
		}
	}
	if len(listeners) > 0 {
		w.SetContactListener(listeners)
	}

	// 5. Step
	dt := cfg.TimeStep()
	particleIterations := cfg.Step.ParticleIterations
	if particleIterations == 0 {
		particleIterations = w.CalculateReasonableParticleIterations(dt)
	}
	sim := &simulation{
		world:              w,
		log:                log,
		dt:                 dt,
		velocityIterations: cfg.Step.VelocityIterations,
		positionIterations: cfg.Step.PositionIterations,
		particleIterations: particleIterations,
		limit:              cfg.Step.Steps,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Run.Renderer == "tui" {
		return sim.runTUI(ctx, cfg.Step.Hz)
	}
	return sim.runTrace(ctx, int(cfg.Step.Hz))
}

func settings(c config.WorldConfig) liquidbox.Settings {
	return liquidbox.Settings{
		Gravity:           liquidbox.Vec2{X: c.Gravity[0], Y: c.Gravity[1]},
		AllowSleep:        c.AllowSleep,
		WarmStarting:      c.WarmStarting,
		ContinuousPhysics: c.Continuous,
		SubStepping:       c.SubStepping,
		AutoClearForces:   c.AutoClearForces,
	}
}

type simulation struct {
	world *liquidbox.World
	log   *zap.Logger

	dt                 float64
	velocityIterations int
	positionIterations int
	particleIterations int

	// limit is the number of steps to run; 0 runs until interrupted.
	limit int
	steps int
}

func (s *simulation) done() bool {
	return s.limit > 0 && s.steps >= s.limit
}

func (s *simulation) step() {
	s.world.StepWithParticles(s.dt, s.velocityIterations, s.positionIterations, s.particleIterations)
	s.steps++
}

func (s *simulation) status(paused bool) string {
	particles := 0
	for ps := range s.world.ParticleSystems() {
		particles += ps.ParticleCount()
	}
	st := fmt.Sprintf("t=%.2fs step=%d bodies=%d contacts=%d particles=%d",
		float64(s.steps)*s.dt, s.steps, s.world.BodyCount(), s.world.ContactCount(), particles)
	if paused {
		st += " [paused]"
	}
	return st + "  space: pause  q: quit"
}

func (s *simulation) runTUI(ctx context.Context, hz float64) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	r := tui.NewRenderer(screen, liquidbox.DrawShape|liquidbox.DrawJoint|liquidbox.DrawParticle)
	return tui.Run(ctx, screen, hz, func(paused bool) bool {
		if !paused {
			s.step()
		}
		r.Render(s.world, s.status(paused))
		return !s.done()
	})
}

// runTrace steps without a display and logs the dynamic bodies and
// particle counts once per simulated second.
func (s *simulation) runTrace(ctx context.Context, every int) error {
	every = max(every, 1)
	for !s.done() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		s.step()
		if s.steps%every == 0 {
			s.trace()
		}
	}
	s.trace()
	return nil
}

func (s *simulation) trace() {
	s.log.Info("step", zap.Int("step", s.steps), zap.Float64("time", float64(s.steps)*s.dt))
	for b := range s.world.Bodies() {
		if b.Type() != liquidbox.DynamicBody {
			continue
		}
		p := b.Position()
		s.log.Info("body",
			zap.Any("name", b.UserData()),
			zap.Float64("x", p.X),
			zap.Float64("y", p.Y),
			zap.Float64("angle", b.Angle()),
			zap.Bool("awake", b.IsAwake()),
		)
	}
	for ps := range s.world.ParticleSystems() {
		s.log.Info("particles",
			zap.Int("count", ps.ParticleCount()),
			zap.Int("groups", ps.GroupCount()),
		)
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
