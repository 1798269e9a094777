package env

// viper keys, see cmd/root.go for the flags bound to them
const (
	ConfigFile = "config"

	Host  = "server.host"
	Port  = "server.port"
	Debug = "server.debug"
	Rate  = "server.rate"

	TrackingURI              = "tracking.uri"
	TrackingBackend          = "tracking.backend"
	TrackingExperiment       = "tracking.experiment"
	TrackingPrintCredentials = "tracking.print-credentials"
	TrackingAutolog          = "tracking.autolog"
	TrackingDir              = "tracking.dir"
	RedisAddr                = "tracking.redis.addr"
	RedisPassword            = "tracking.redis.password"
	RedisDB                  = "tracking.redis.db"

	TestSize = "dataset.test-size"
	Seed     = "dataset.seed"

	LaunchUI  = "ui.launch"
	UICommand = "ui.command"
	UIArgs    = "ui.args"

	TraceAgentHostPort = "trace.agent"

	LogFile  = "log.file"
	LogLevel = "log.level"
)

// environment variables read by the tracking client on every request,
// other keys can be set through TRAINER_<KEY> with dots and dashes as underscores
const (
	EnvTrackingUsername = "MLFLOW_TRACKING_USERNAME"
	EnvTrackingPassword = "MLFLOW_TRACKING_PASSWORD"
)

// defaults
const (
	EnvPrefix = "trainer"

	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultRate        = "100-S"
	DefaultTrackingURI = "http://127.0.0.1:5000"
	DefaultBackend     = "mlflow"
	DefaultExperiment  = "Default"
	DefaultUsername    = "default_username"
	DefaultPassword    = "default_password"
	DefaultTrackingDir = "/tmp/trainer/runs"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultTestSize    = 0.3
	DefaultSeed        = 42
	DefaultUICommand   = "mlflow"
)

// DefaultUIArgs starts the MLflow UI on the same port the default tracking uri points at.
var DefaultUIArgs = []string{"ui", "--host", "0.0.0.0", "--port", "5000"}
