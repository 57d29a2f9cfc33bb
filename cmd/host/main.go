package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"modhost.dev/internal/config"
	"modhost.dev/internal/engine"
	"modhost.dev/internal/logging"
	"modhost.dev/internal/persistence/indexdb"
	"modhost.dev/internal/persistence/tracelog"
	"modhost.dev/internal/transport/ws"
	"modhost.dev/internal/worldstate"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/host.yaml", "host config path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		wsAddr     = flag.String("ws", "", "remote console listen address (overrides config)")
		schemaPath = flag.String("schema", "./schemas/command.schema.json", "command message schema path")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/fault index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[host] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *wsAddr != "" {
		cfg.WSAddr = *wsAddr
	}
	if *disableDB {
		cfg.DisableDB = true
	}

	mon := logging.New(os.Stdout, "[host] ", parseLevel(cfg.LogLevel))

	hostDir := filepath.Join(cfg.DataDir, "host")
	_ = os.MkdirAll(hostDir, 0o755)

	traceLog := tracelog.NewTraceLogger(hostDir)
	defer traceLog.Close()

	// Optional: read-model index backend (never read back by the engine).
	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(hostDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
	}

	world := seedWorld()

	ctx, cancel := signalContext()
	defer cancel()

	var eng *engine.Engine
	sim := &demoSim{world: world}
	eng = engine.New(mon, world, engine.Options{
		CrashTolerance:   cfg.CrashTolerance,
		SecondEveryTicks: cfg.SecondEveryTicks,
		LoadPumpLimit:    cfg.LoadPumpLimit,
		Content:          newMemoryContent(world),
		Multiplayer:      soloSession{},
		Surface:          &memorySurface{},
		Trace:            multiTraceSink{a: traceLog, b: idx},
		Hooks: engine.Hooks{
			SimStep:         func() { sim.step(eng) },
			FirstTick:       func() { mon.Log("", logging.Info, "host started; type 'help' for commands") },
			IsWindowFocused: func() bool { return true },
			OnFatal: func(reason string) {
				logger.Printf("fatal: %s", reason)
				cancel()
			},
		},
	})

	registerBuiltins(eng, mon)
	watchEvents(eng, mon)

	// Remote console over websocket feeds the same queue as stdin.
	wsSrv, err := ws.NewServer(eng.Commands(), "modhost", *schemaPath, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	srv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("remote console listening on %s", cfg.WSAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	go readConsole(eng)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One more pass so cancellation drains deterministically.
			eng.Cancel()
			eng.RunTick()
			logger.Printf("stopped at tick %d", eng.TicksElapsed())
			return
		case <-ticker.C:
			eng.RunTick()
		}
	}
}

func parseLevel(s string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logging.Trace
	case "debug":
		return logging.Debug
	case "warn":
		return logging.Warn
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func seedWorld() *worldstate.World {
	w := worldstate.New()
	w.Locale = "en"
	w.TimeOfDay = 600
	w.Window = worldstate.Size{W: 1280, H: 720}

	farm := w.AddLocation("Farm")
	farm.NPCs["abigail"] = struct{}{}
	farm.Buildings["farmhouse"] = struct{}{}
	farm.Chests["chest-1"] = map[string]int{"parsnip": 5}

	town := w.AddLocation("Town")
	town.NPCs["pierre"] = struct{}{}

	p := w.Player(0)
	p.Location = "Farm"
	p.Skills["farming"] = 0
	p.Inventory["axe"] = 1
	return w
}

// demoSim is a toy world mutator so a bare host shows watcher diffs and event
// dispatch without a real game attached.
type demoSim struct {
	world *worldstate.World
	steps uint64
}

func (s *demoSim) step(eng *engine.Engine) {
	s.steps++

	// A completed load pump parks the stage at Loaded; the world is
	// interactive again on the next pass.
	if eng.Stage() == engine.StageLoaded {
		eng.TransitionTo(engine.StageReady)
	}
	if eng.Stage() != engine.StageReady {
		return
	}

	if s.steps%60 == 0 {
		s.world.TimeOfDay += 10
	}
	if s.steps%300 == 0 {
		farm := s.world.Locations["Farm"]
		town := s.world.Locations["Town"]
		if _, home := farm.NPCs["abigail"]; home {
			delete(farm.NPCs, "abigail")
			town.NPCs["abigail"] = struct{}{}
		} else {
			delete(town.NPCs, "abigail")
			farm.NPCs["abigail"] = struct{}{}
		}
	}
}

// sliceLoadSequence replays a fixed checkpoint list. Demo stand-in for a real
// background save loader.
type sliceLoadSequence struct {
	checkpoints []int
	pos         int
}

func (s *sliceLoadSequence) Next() (int, bool) {
	if s.pos >= len(s.checkpoints) {
		return 0, false
	}
	cp := s.checkpoints[s.pos]
	s.pos++
	return cp, true
}

func registerBuiltins(eng *engine.Engine, mon *logging.Monitor) {
	q := eng.Commands()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(q.RegisterCommand(&engine.Command{
		Name: "help", Owner: "host", Summary: "list registered commands",
		Handler: func(screenID int, name string, args []string) {
			defs := q.Commands()
			names := make([]string, 0, len(defs))
			for n := range defs {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				mon.Log("", logging.Info, "  %-10s %s", n, defs[n].Summary)
			}
		},
	}))
	must(q.RegisterCommand(&engine.Command{
		Name: "stage", Owner: "host", Summary: "print the current load stage",
		Handler: func(screenID int, name string, args []string) {
			mon.Log("", logging.Info, "stage=%s tick=%d crash_tolerance=%d",
				eng.Stage(), eng.TicksElapsed(), eng.CrashToleranceRemaining())
		},
	}))
	must(q.RegisterCommand(&engine.Command{
		Name: "screens", Owner: "host", Summary: "list active screen contexts",
		Handler: func(screenID int, name string, args []string) {
			for _, ctx := range eng.Screens().Active() {
				mon.Log("", logging.Info, "  screen %d", ctx.ID)
			}
		},
	}))
	must(q.RegisterCommand(&engine.Command{
		Name: "load", Owner: "host", Summary: "run the demo load sequence to Ready",
		Handler: func(screenID int, name string, args []string) {
			eng.BeginLoad(screenID, &sliceLoadSequence{checkpoints: []int{
				engine.CheckpointParseStarted,
				engine.CheckpointBasicInfoLoaded,
				engine.CheckpointLocationsLoaded,
				engine.CheckpointPreloaded,
				engine.CheckpointLoadComplete,
			}})
		},
	}))
	must(q.RegisterCommand(&engine.Command{
		Name: "title", Owner: "host", Summary: "return to the title stage",
		Handler: func(screenID int, name string, args []string) {
			eng.TransitionTo(engine.StageReturningToTitle)
			eng.TransitionTo(engine.StageNone)
		},
	}))
}

func watchEvents(eng *engine.Engine, mon *logging.Monitor) {
	ev := eng.Events()
	ev.StageChanged.Register("host", func(p engine.StageChanged) {
		mon.Log("", logging.Info, "stage changed: %s -> %s", p.Old, p.New)
	})
	ev.TimeChanged.Register("host", func(p engine.TimeChanged) {
		mon.Log("", logging.Info, "time: %04d -> %04d", p.Old, p.New)
	})
	ev.Warped.Register("host", func(p engine.Warped) {
		mon.Log("", logging.Info, "screen %d warped: %s -> %s", p.ScreenID, p.Old, p.New)
	})
	ev.NPCListChanged.Register("host", func(p engine.MemberListChanged) {
		mon.Log("", logging.Info, "npcs at %s: +%v -%v", p.Location, p.Added, p.Removed)
	})
	ev.SaveLoaded.Register("host", func(p engine.SaveLoaded) {
		mon.Log("", logging.Info, "save loaded on screen %d", p.ScreenID)
	})
}

func readConsole(eng *engine.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		eng.Commands().Enqueue(line)
	}
}

// memoryContent is an in-process asset cache keyed by asset name.
type memoryContent struct {
	world  *worldstate.World
	assets map[string]struct{}
}

func newMemoryContent(world *worldstate.World) *memoryContent {
	return &memoryContent{
		world: world,
		assets: map[string]struct{}{
			"Maps/Farm":          {},
			"Maps/Town":          {},
			"Characters/Abigail": {},
			"Data/Objects":       {},
		},
	}
}

func (c *memoryContent) Invalidate(predicate func(key string) bool) int {
	n := 0
	for key := range c.assets {
		if predicate(key) {
			delete(c.assets, key)
			n++
		}
	}
	return n
}

func (c *memoryContent) CurrentLocale() string { return c.world.Locale }

type memorySurface struct {
	open bool
}

func (s *memorySurface) IsOpen() bool { return s.open }
func (s *memorySurface) Open()        { s.open = true }
func (s *memorySurface) Close()       { s.open = false }

// soloSession is the no-peers multiplayer stub for a standalone host.
type soloSession struct{}

func (soloSession) PeerCount() int { return 0 }

type multiTraceSink struct {
	a engine.TraceSink
	b *indexdb.SQLiteIndex
}

func (m multiTraceSink) WriteTick(entry engine.TickLogEntry) error {
	err := m.a.WriteTick(entry)
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return err
}

func (m multiTraceSink) WriteFault(entry engine.FaultEntry) error {
	err := m.a.WriteFault(entry)
	if m.b != nil {
		_ = m.b.WriteFault(entry)
	}
	return err
}
