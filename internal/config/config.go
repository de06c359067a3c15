package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	RateLimit         float64       `mapstructure:"rate_limit"` // 每秒允许的指令数
	RateBurst         int           `mapstructure:"rate_burst"`
	LeaveGrace        time.Duration `mapstructure:"leave_grace"` // 断线后保留座位的时间，0为立即离开
}

// GameConfig 游戏配置
type GameConfig struct {
	RoomTTL           time.Duration `mapstructure:"room_ttl"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	MaxRooms          int           `mapstructure:"max_rooms"`
	BlankGuessTimeout time.Duration `mapstructure:"blank_guess_timeout"`
	TieBreak          string        `mapstructure:"tie_break"` // revote | lowest_id
	MaxVoteRounds     int           `mapstructure:"max_vote_rounds"`
	AllowSelfVote     bool          `mapstructure:"allow_self_vote"`
	MaxClueLength     int           `mapstructure:"max_clue_length"`
	Defaults          RoomDefaults  `mapstructure:"defaults"`
}

// RoomDefaults 新建房间的默认设置
type RoomDefaults struct {
	MaxPlayers        int    `mapstructure:"max_players"`
	RoundTimeSeconds  int    `mapstructure:"round_time_seconds"`
	MinorityCount     int    `mapstructure:"minority_count"`
	BlankCount        int    `mapstructure:"blank_count"`
	WordPack          string `mapstructure:"word_pack"`
	DiscussionEnabled bool   `mapstructure:"discussion_enabled"`
}

// StorageConfig 房间快照存储配置
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"` // database | memory
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RecordResults bool          `mapstructure:"record_results"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = newViper(configPath)
		cfg, err = load(v)
	})

	return err
}

// Load 读取一份独立的配置，不影响全局实例
func Load(configPath string) (*Config, error) {
	return load(newViper(configPath))
}

func newViper(configPath string) *viper.Viper {
	nv := viper.New()

	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath("./config")
		nv.AddConfigPath(".")
	}

	nv.SetEnvPrefix("UNDERCOVER")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	setDefaults(nv)
	return nv
}

func load(nv *viper.Viper) (*Config, error) {
	if err := nv.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := nv.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allow_origins", []string{"*"})

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/undercover.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", false)
	v.SetDefault("websocket.rate_limit", 5)
	v.SetDefault("websocket.rate_burst", 10)
	v.SetDefault("websocket.leave_grace", "15s")

	// 游戏默认配置
	v.SetDefault("game.room_ttl", "24h")
	v.SetDefault("game.cleanup_interval", "5m")
	v.SetDefault("game.max_rooms", 10000)
	v.SetDefault("game.blank_guess_timeout", "30s")
	v.SetDefault("game.tie_break", "revote")
	v.SetDefault("game.max_vote_rounds", 3)
	v.SetDefault("game.allow_self_vote", false)
	v.SetDefault("game.max_clue_length", 64)
	v.SetDefault("game.defaults.max_players", 8)
	v.SetDefault("game.defaults.round_time_seconds", 60)
	v.SetDefault("game.defaults.minority_count", 1)
	v.SetDefault("game.defaults.blank_count", 0)
	v.SetDefault("game.defaults.word_pack", "classic")
	v.SetDefault("game.defaults.discussion_enabled", false)

	// 存储默认配置
	v.SetDefault("storage.backend", "database")
	v.SetDefault("storage.retry_times", 3)
	v.SetDefault("storage.retry_interval", "100ms")
	v.SetDefault("storage.record_results", true)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "undercover.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.issuer", "undercover-game")
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Game.TieBreak {
	case "revote", "lowest_id":
	default:
		return fmt.Errorf("game.tie_break 不支持: %q", c.Game.TieBreak)
	}
	if c.Game.MaxVoteRounds < 1 {
		return fmt.Errorf("game.max_vote_rounds 必须大于0")
	}
	switch c.Storage.Backend {
	case "database", "memory":
	default:
		return fmt.Errorf("storage.backend 不支持: %q", c.Storage.Backend)
	}
	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret 不能为空")
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
}
