package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twmb/franz-go/pkg/kgo"

	anomalyhandler "timekeep/internal/anomaly/handler"
	"timekeep/internal/anomaly/rules"
	anomalyservice "timekeep/internal/anomaly/service"
	anomalystore "timekeep/internal/anomaly/store"
	attendancehandler "timekeep/internal/attendance/handler"
	attendancemodels "timekeep/internal/attendance/models"
	attendanceports "timekeep/internal/attendance/ports"
	attendanceservice "timekeep/internal/attendance/service"
	attendancestore "timekeep/internal/attendance/store"
	audithandler "timekeep/internal/audit/handler"
	auditmetrics "timekeep/internal/audit/metrics"
	auditmodels "timekeep/internal/audit/models"
	auditservice "timekeep/internal/audit/service"
	auditstore "timekeep/internal/audit/store"
	deviceservice "timekeep/internal/device/service"
	devicetransport "timekeep/internal/device/transport"
	jwttoken "timekeep/internal/jwt_token"
	"timekeep/internal/notify"
	punchhandler "timekeep/internal/punch/handler"
	punchservice "timekeep/internal/punch/service"
	punchstore "timekeep/internal/punch/store"
	"timekeep/internal/platform/config"
	"timekeep/internal/platform/httpserver"
	"timekeep/internal/platform/kafka"
	"timekeep/internal/platform/keylock"
	"timekeep/internal/platform/metrics"
	"timekeep/internal/platform/postgres"
	platformredis "timekeep/internal/platform/redis"
	"timekeep/internal/platform/rediscache"
	"timekeep/internal/platform/upstream"
	"timekeep/internal/queue"
	"timekeep/internal/resolution"
	resolutionports "timekeep/internal/resolution/ports"
	resolutionstore "timekeep/internal/resolution/store"
	id "timekeep/pkg/domain"
	authmw "timekeep/pkg/platform/middleware/auth"
	"timekeep/pkg/platform/middleware/httpmetrics"
	"timekeep/pkg/platform/middleware/metadata"
	"timekeep/pkg/platform/middleware/request"
	"timekeep/pkg/platform/middleware/requesttime"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// app is the assembled process: stores, services, queues and the router.
// Everything is built once by newApp and torn down by close.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	stacks  *resilience.Stacks

	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
	tx    txcontext.Runner

	audit    *auditservice.Logger
	gateway  *punchservice.Gateway
	builder  *attendanceservice.Builder
	signals  *anomalyservice.Signals
	security *anomalyservice.Consumer
	anomaly  *anomalyservice.Consumer
	hub      *notify.Hub
	fanout   *notify.Fanout
	poller   *deviceservice.Poller

	securityQueue *queue.Bounded[auditmodels.Entry]
	anomalyQueue  *queue.Bounded[auditmodels.Entry]
	notifyQueue   *queue.Bounded[notify.Event]
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		tx:      txcontext.MemoryRunner{},
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	reg := a.metrics.Registry
	a.stacks = resilience.NewStacks(cfg.Stacks, logger, resilience.NewMetrics(reg), sentinel.ErrNotFound, sentinel.ErrConflict)

	if err := a.openBackends(ctx); err != nil {
		return nil, err
	}
	if err := a.buildQueues(); err != nil {
		return nil, err
	}

	// audit
	var auditStore auditservice.Store = auditstore.NewInMemory()
	if a.db != nil {
		auditStore = auditstore.NewPostgres(a.db)
	}
	a.audit, err = auditservice.New(auditStore,
		auditservice.WithLogger(logger),
		auditservice.WithMetrics(auditmetrics.New(reg)),
		auditservice.WithPipeline(a.stacks.Get(resilience.DependencyAudit)),
		auditservice.WithSubscribers(a.securityQueue, a.anomalyQueue),
	)
	if err != nil {
		return nil, err
	}

	locker := keylock.New(cfg.Ingest.LockShards)
	if err := a.buildIngest(locker); err != nil {
		return nil, err
	}
	if err := a.buildAnalysis(); err != nil {
		return nil, err
	}
	if err := a.buildNotify(); err != nil {
		return nil, err
	}
	if err := a.buildPoller(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openBackends(ctx context.Context) error {
	if a.cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		a.tx = txcontext.NewSQLRunner(db)
	} else {
		a.logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.redis = rc

	kc, err := kafka.NewClient(a.cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	a.kafka = kc
	return nil
}

func (a *app) buildQueues() error {
	qm := queue.NewMetrics(a.metrics.Registry)
	opts := func(c config.QueueConfig) []queue.Option {
		return []queue.Option{
			queue.WithWorkers(c.Workers),
			queue.WithHandleTimeout(c.HandleTimeout),
			queue.WithDrainTimeout(c.DrainTimeout),
			queue.WithLogger(a.logger),
			queue.WithMetrics(qm),
		}
	}
	var err error
	q := a.cfg.Queues
	if a.securityQueue, err = queue.New[auditmodels.Entry]("security", q.Security.Capacity, opts(q.Security)...); err != nil {
		return err
	}
	if a.anomalyQueue, err = queue.New[auditmodels.Entry]("anomaly", q.Anomaly.Capacity, opts(q.Anomaly)...); err != nil {
		return err
	}
	if a.notifyQueue, err = queue.New[notify.Event]("notify", q.Notify.Capacity, opts(q.Notify)...); err != nil {
		return err
	}
	return nil
}

// punchStore is written by the gateway and read back by manual resolution.
type punchStore interface {
	punchservice.Store
	resolution.PunchReader
}

// buildIngest assembles resolution, the attendance builder and the punch
// gateway. The gateway and the builder share one lock table so a sweep never
// races a punch for the same employee and day.
func (a *app) buildIngest(locker *keylock.Locker) error {
	reg := a.metrics.Registry
	cfg := a.cfg

	registry, err := a.registry()
	if err != nil {
		return err
	}
	var fingerprints resolution.FingerprintStore = resolutionstore.NewInMemoryFingerprints()
	if a.redis != nil {
		fingerprints = resolutionstore.NewRedisFingerprints(a.redis.Client)
	}
	var punches punchStore = punchstore.NewInMemory()
	if a.db != nil {
		punches = punchstore.NewPostgres(a.db)
	}
	resolver, err := resolution.New(registry, fingerprints, punches,
		resolution.Config{
			Tolerance:        cfg.Ingest.DedupTolerance,
			FingerprintTTL:   cfg.Ingest.FingerprintTTL,
			QualityThreshold: cfg.Ingest.QualityThreshold,
		},
		resolution.WithLogger(a.logger),
		resolution.WithMetrics(resolution.NewMetrics(reg)),
		resolution.WithRegistryPipeline(a.stacks.Get(resilience.DependencyRegistry)),
		resolution.WithCachePipeline(a.stacks.Get(resilience.DependencyCache)),
	)
	if err != nil {
		return err
	}

	shifts, err := a.shifts()
	if err != nil {
		return err
	}
	var spans attendanceservice.Store = attendancestore.NewInMemory()
	if a.db != nil {
		spans = attendancestore.NewPostgres(a.db)
	}
	a.builder, err = attendanceservice.New(spans, shifts, a.audit,
		attendanceservice.WithLogger(a.logger),
		attendanceservice.WithMetrics(attendanceservice.NewMetrics(reg)),
		attendanceservice.WithTxRunner(a.tx),
		attendanceservice.WithLocker(locker),
		attendanceservice.WithShiftPipeline(a.stacks.Get(resilience.DependencyShift)),
		attendanceservice.WithEvents(a.notifyQueue),
	)
	if err != nil {
		return err
	}

	a.gateway, err = punchservice.New(resolver, a.builder, punches, a.audit,
		punchservice.WithLogger(a.logger),
		punchservice.WithMetrics(punchservice.NewMetrics(reg)),
		punchservice.WithTxRunner(a.tx),
		punchservice.WithLocker(locker),
		punchservice.WithEvents(a.notifyQueue),
	)
	return err
}

func (a *app) registry() (resolution.DeviceRegistry, error) {
	src := a.cfg.Registry
	var next resolutionports.DeviceRegistry
	switch {
	case src.URL != "":
		client, err := upstream.New("registry", src.URL, upstream.WithBearerToken(src.Token))
		if err != nil {
			return nil, err
		}
		next = resolutionports.NewHTTPRegistry(client)
	case src.StaticFile != "":
		static, err := resolutionports.LoadStaticRegistry(src.StaticFile)
		if err != nil {
			return nil, err
		}
		next = static
	default:
		a.logger.Warn("no device registry configured, every device user resolves as unknown")
		next = resolutionports.NewStaticRegistry()
	}
	if a.redis == nil || src.CacheTTL <= 0 {
		return next, nil
	}
	cache := rediscache.New[id.EmployeeID](a.redis.Client, "timekeep:registry:", src.CacheTTL,
		rediscache.WithPipeline(a.stacks.Get(resilience.DependencyCache)),
		rediscache.WithLogger(a.logger),
	)
	return resolutionports.NewCachedRegistry(next, cache), nil
}

func (a *app) shifts() (attendanceservice.ShiftLookup, error) {
	src := a.cfg.Shifts
	var next attendanceports.ShiftLookup
	switch {
	case src.URL != "":
		client, err := upstream.New("shifts", src.URL, upstream.WithBearerToken(src.Token))
		if err != nil {
			return nil, err
		}
		next = attendanceports.NewHTTPShifts(client)
	case src.StaticFile != "":
		static, err := attendanceports.LoadStaticShifts(src.StaticFile)
		if err != nil {
			return nil, err
		}
		next = static
	default:
		next = attendanceports.NewStaticShifts()
	}
	if a.redis == nil || src.CacheTTL <= 0 {
		return next, nil
	}
	cache := rediscache.New[attendancemodels.Shift](a.redis.Client, "timekeep:shift:", src.CacheTTL,
		rediscache.WithPipeline(a.stacks.Get(resilience.DependencyCache)),
		rediscache.WithLogger(a.logger),
	)
	return attendanceports.NewCachedShifts(next, cache), nil
}

// buildAnalysis wires the security and anomaly engines behind their queues
// and the signal service the API reads from.
func (a *app) buildAnalysis() error {
	rc := a.cfg.Rules
	zone, err := time.LoadLocation(rc.BusinessHoursZone)
	if err != nil {
		return fmt.Errorf("business hours zone: %w", err)
	}
	ruleCfg := rules.Config{
		FailedLoginThreshold:  rc.FailedLoginThreshold,
		FailedLoginWindow:     rc.FailedLoginWindow,
		MassExportRows:        rc.MassExportRows,
		ImpossibleTravelKmh:   rc.ImpossibleTravelKmh,
		MaxConcurrentSessions: rc.MaxConcurrentSessions,
		SessionTTL:            rc.SessionTTL,
		BusinessHoursStart:    rc.BusinessHoursStart,
		BusinessHoursEnd:      rc.BusinessHoursEnd,
		BusinessHoursZone:     zone,
		SalaryChangePercent:   rc.SalaryChangePercent,
		RapidActionThreshold:  rc.RapidActionThreshold,
		RapidActionWindow:     rc.RapidActionWindow,
	}
	deps := rules.Deps{
		Windows:   anomalystore.NewInMemoryWindows(),
		Sessions:  anomalystore.NewInMemorySessions(),
		Locations: anomalystore.NewInMemoryLocations(),
		Pipeline:  a.stacks.Get(resilience.DependencyCache),
	}
	if a.redis != nil {
		deps.Windows = anomalystore.NewRedisWindows(a.redis.Client)
		deps.Sessions = anomalystore.NewRedisSessions(a.redis.Client)
		deps.Locations = anomalystore.NewRedisLocations(a.redis.Client, rc.SessionTTL)
	}

	var store anomalyservice.SignalStore = anomalystore.NewInMemorySignals()
	if a.db != nil {
		store = anomalystore.NewPostgresSignals(a.db)
	}
	m := anomalyservice.NewMetrics(a.metrics.Registry)
	engine := func(name string, rs []rules.Rule) (*anomalyservice.Consumer, error) {
		e, err := anomalyservice.NewEngine(name, rs, store,
			anomalyservice.WithLogger(a.logger),
			anomalyservice.WithMetrics(m),
			anomalyservice.WithStorePipeline(a.stacks.Get(resilience.DependencyAudit)),
		)
		if err != nil {
			return nil, err
		}
		return anomalyservice.NewConsumer(e,
			anomalyservice.WithEvents(a.notifyQueue),
			anomalyservice.WithConsumerLogger(a.logger),
		)
	}
	if a.security, err = engine("security", rules.Security(ruleCfg, deps)); err != nil {
		return err
	}
	if a.anomaly, err = engine("anomaly", rules.Anomaly(ruleCfg, deps)); err != nil {
		return err
	}
	a.audit.SetTamperReporter(a.security)

	a.signals, err = anomalyservice.NewSignals(store, a.audit,
		anomalyservice.WithSignalsLogger(a.logger),
		anomalyservice.WithSignalsMetrics(m),
		anomalyservice.WithTxRunner(a.tx),
	)
	return err
}

func (a *app) buildNotify() error {
	nm := notify.NewMetrics(a.metrics.Registry)
	a.hub = notify.NewHub(a.cfg.Notify.SubscriberBuffer, nm)
	opts := []notify.Option{
		notify.WithPipeline(a.stacks.Get(resilience.DependencyNotify)),
		notify.WithLogger(a.logger),
		notify.WithMetrics(nm),
	}
	if a.kafka != nil {
		topics := kafka.NewTopicEnsurer(a.kafka, a.cfg.Kafka, a.logger)
		opts = append(opts, notify.WithChannels(notify.NewKafkaChannel(a.kafka, topics, a.cfg.Kafka.TopicPrefix)))
	}
	var err error
	a.fanout, err = notify.NewFanout(a.hub, opts...)
	return err
}

func (a *app) buildPoller() error {
	if len(a.cfg.Devices.Devices) == 0 {
		return nil
	}
	devices := make([]deviceservice.Device, 0, len(a.cfg.Devices.Devices))
	for _, d := range a.cfg.Devices.Devices {
		tenantID, err := id.ParseTenantID(d.TenantID)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.Serial, err)
		}
		devices = append(devices, deviceservice.Device{Serial: d.Serial, TenantID: tenantID})
	}
	client, err := upstream.New("device-bridge", a.cfg.Devices.BridgeURL)
	if err != nil {
		return err
	}
	a.poller, err = deviceservice.NewPoller(devicetransport.NewBridge(client), a.gateway, devices,
		deviceservice.WithInterval(a.cfg.Devices.PollInterval),
		deviceservice.WithClearAfterFetch(a.cfg.Devices.ClearAfter),
		deviceservice.WithPipeline(a.stacks.Get(resilience.DependencyDevice)),
		deviceservice.WithEvents(a.notifyQueue),
		deviceservice.WithLogger(a.logger),
		deviceservice.WithMetrics(deviceservice.NewMetrics(a.metrics.Registry)),
	)
	return err
}

// router mounts the public probes and the tenant-scoped API.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpmetrics.Middleware(a.metrics.RequestsTotal, a.metrics.RequestDuration))

	r.Handle("/metrics", a.metrics.Handler())
	r.Get("/health", a.handleHealth)

	verifier := jwttoken.NewMiddlewareAdapter(jwttoken.NewVerifier(a.cfg.Server.JWTSigningKey, "", ""))
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireTenant(verifier, a.logger))
		punchhandler.New(a.gateway, a.logger).Register(r)
		attendancehandler.New(a.builder, a.logger).Register(r)
		audithandler.New(a.audit, a.logger).Register(r)
		anomalyhandler.New(a.signals, a.logger).Register(r)
		notify.NewRealtimeHandler(a.hub, a.cfg.Notify.OriginPatterns, a.logger).Register(r)
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			a.logger.WarnContext(ctx, "health: postgres unreachable", "error", err)
			status = http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			a.logger.WarnContext(ctx, "health: redis unreachable", "error", err)
			status = http.StatusServiceUnavailable
		}
	}
	w.WriteHeader(status)
}

func (a *app) server() *http.Server {
	return httpserver.New(a.cfg.Server.Addr, a.router())
}

func (a *app) close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
