package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is loaded once at startup. Packages that need settings at init time
// (logging, mostly) read it directly; everything else should receive the
// relevant sub-config through its constructor.
var Config EduverseConfig

func init() {
	cfg, err := Load(envFileDirs()...)
	if err != nil {
		panic(err)
	}
	Config = cfg
}

var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

const DefaultSampleVideoURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

func Defaults() EduverseConfig {
	return EduverseConfig{
		Env:       Dev,
		LogLevel:  zerolog.InfoLevel,
		LogFormat: "pretty",
		Chain: ChainConfig{
			EngineURL:    "http://localhost:3005",
			ChainID:      4202,
			WriteTimeout: 2 * time.Minute,
			PollMin:      1 * time.Second,
			PollMax:      10 * time.Second,
		},
		Storage: StorageConfig{
			Endpoint:         "https://s3.filebase.com",
			Region:           "us-east-1",
			Bucket:           "eduverse",
			DedicatedGateway: "https://ipfs.filebase.io",
		},
		Viewing: ViewingConfig{
			Gateways:            DefaultGateways,
			ProbeTimeout:        5 * time.Second,
			SampleVideoURL:      DefaultSampleVideoURL,
			LicenseRecheckDelay: 2 * time.Second,
			LicenseRechecks:     1,
			VideoCacheSize:      512,
		},
		Throttle: ThrottleConfig{
			UploadDelay:  1 * time.Second,
			SectionDelay: 2 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:     5432,
			LogLevel: tracelog.LogLevelWarn,
			MinConn:  1,
			MaxConn:  4,
		},
		DevPin: DevPinConfig{
			Addr:   ":9090",
			Folder: "./tmp/devpin",
		},
	}
}

// Load reads .env.local and .env from the given directories (later files do
// not override earlier ones) and then applies EDUVERSE_* environment
// variables on top of the defaults.
func Load(envDirs ...string) (EduverseConfig, error) {
	for _, dir := range envDirs {
		for _, name := range []string{".env.local", ".env"} {
			fp := filepath.Join(dir, name)
			if _, err := os.Stat(fp); err != nil {
				continue
			}
			if err := godotenv.Load(fp); err != nil {
				return EduverseConfig{}, fmt.Errorf("load env file %s: %w", fp, err)
			}
		}
	}

	cfg := Defaults()
	r := envReader{}

	cfg.Env = Environment(r.str("EDUVERSE_ENV", string(cfg.Env)))
	if lvl := os.Getenv("EDUVERSE_LOG_LEVEL"); lvl != "" {
		parsed, err := zerolog.ParseLevel(lvl)
		if err != nil {
			r.fail("EDUVERSE_LOG_LEVEL", err)
		} else {
			cfg.LogLevel = parsed
		}
	}
	cfg.LogFormat = r.str("EDUVERSE_LOG_FORMAT", cfg.LogFormat)

	cfg.Chain.EngineURL = strings.TrimRight(r.str("EDUVERSE_ENGINE_URL", cfg.Chain.EngineURL), "/")
	if err := checkBaseURL(cfg.Chain.EngineURL); err != nil {
		r.fail("EDUVERSE_ENGINE_URL", err)
	}
	cfg.Chain.AccessToken = r.str("EDUVERSE_ENGINE_TOKEN", cfg.Chain.AccessToken)
	cfg.Chain.ChainID = r.int64("EDUVERSE_CHAIN_ID", cfg.Chain.ChainID)
	cfg.Chain.AllowedChainIDs = r.int64List("EDUVERSE_ALLOWED_CHAIN_IDS", []int64{cfg.Chain.ChainID})
	cfg.Chain.ContractAddress = r.str("EDUVERSE_CONTRACT_ADDRESS", cfg.Chain.ContractAddress)
	cfg.Chain.WalletAddress = r.str("EDUVERSE_WALLET_ADDRESS", cfg.Chain.WalletAddress)
	cfg.Chain.WriteTimeout = r.duration("EDUVERSE_WRITE_TIMEOUT", cfg.Chain.WriteTimeout)
	cfg.Chain.PollMin = r.duration("EDUVERSE_POLL_MIN", cfg.Chain.PollMin)
	cfg.Chain.PollMax = r.duration("EDUVERSE_POLL_MAX", cfg.Chain.PollMax)

	cfg.Storage.Endpoint = r.str("EDUVERSE_STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = r.str("EDUVERSE_STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AccessKey = r.str("EDUVERSE_STORAGE_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = r.str("EDUVERSE_STORAGE_SECRET", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = r.str("EDUVERSE_STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.DedicatedGateway = strings.TrimRight(r.str("EDUVERSE_DEDICATED_GATEWAY", cfg.Storage.DedicatedGateway), "/")

	cfg.Viewing.Gateways = r.list("EDUVERSE_GATEWAYS", cfg.Viewing.Gateways)
	cfg.Viewing.ProbeTimeout = r.duration("EDUVERSE_PROBE_TIMEOUT", cfg.Viewing.ProbeTimeout)
	cfg.Viewing.SampleVideoURL = r.str("EDUVERSE_SAMPLE_VIDEO_URL", cfg.Viewing.SampleVideoURL)
	cfg.Viewing.LicenseRecheckDelay = r.duration("EDUVERSE_LICENSE_RECHECK_DELAY", cfg.Viewing.LicenseRecheckDelay)
	cfg.Viewing.LicenseRechecks = r.int("EDUVERSE_LICENSE_RECHECKS", cfg.Viewing.LicenseRechecks)
	cfg.Viewing.VideoCacheSize = r.int("EDUVERSE_VIDEO_CACHE_SIZE", cfg.Viewing.VideoCacheSize)

	cfg.Throttle.UploadDelay = r.duration("EDUVERSE_UPLOAD_DELAY", cfg.Throttle.UploadDelay)
	cfg.Throttle.SectionDelay = r.duration("EDUVERSE_SECTION_DELAY", cfg.Throttle.SectionDelay)

	cfg.Postgres.User = r.str("EDUVERSE_DB_USER", cfg.Postgres.User)
	cfg.Postgres.Password = r.str("EDUVERSE_DB_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Hostname = r.str("EDUVERSE_DB_HOST", cfg.Postgres.Hostname)
	cfg.Postgres.Port = r.int("EDUVERSE_DB_PORT", cfg.Postgres.Port)
	cfg.Postgres.DbName = r.str("EDUVERSE_DB_NAME", cfg.Postgres.DbName)

	cfg.DevPin.Addr = r.str("EDUVERSE_DEVPIN_ADDR", cfg.DevPin.Addr)
	cfg.DevPin.Folder = r.str("EDUVERSE_DEVPIN_FOLDER", cfg.DevPin.Folder)

	if len(r.errs) > 0 {
		return EduverseConfig{}, fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
	}
	return cfg, nil
}

func checkBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

func envFileDirs() []string {
	var dirs []string
	if explicit := os.Getenv("EDUVERSE_ENV_DIR"); explicit != "" {
		dirs = append(dirs, explicit)
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

type envReader struct {
	errs []string
}

func (r *envReader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *envReader) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *envReader) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *envReader) int64List(key string, def []int64) []int64 {
	parts := r.list(key, nil)
	if parts == nil {
		return def
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			r.fail(key, err)
			return def
		}
		out = append(out, n)
	}
	return out
}
