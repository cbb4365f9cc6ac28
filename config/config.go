package config

import (
	"os"
	"path"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// BotConfig holds chat automation settings: the webhook base used to derive
// per-instance webhook URLs, the admin notification number and the default
// greeting used by the keyword responder.
type BotConfig struct {
	WebhookBaseURL string `yaml:"webhook_base_url" json:"webhook_base_url"`
	AdminNumber    string `yaml:"admin_number" json:"admin_number"`
	Greeting       string `yaml:"greeting" json:"greeting"`
	PrintQR        bool   `yaml:"print_qr" json:"print_qr"`
}

type AppConfig struct {
	System   SysConfig `yaml:"system" json:"system"`
	Web      WebConfig `yaml:"web" json:"web"`
	Database DBConfig  `yaml:"database" json:"database"`
	Logger   LogConfig `yaml:"logger" json:"logger"`
	Bot      BotConfig `yaml:"bot" json:"bot"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "whatsbot",
			Location: "America/Sao_Paulo",
			Workdir:  "/var/whatsbot",
			Debug:    true,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 3001,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "whatsbot",
			User:     "postgres",
			Passwd:   "",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/whatsbot/whatsbot.log",
		},
		Bot: BotConfig{
			WebhookBaseURL: "https://www.koddahub.com.br/webhook/whatsapp",
			Greeting:       "🦕 Olá! Sou o Kodassauro, assistente da KoddaHub. Como posso ajudar?",
		},
	}
}

func setEnvValue(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvIntValue(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

// LoadConfig reads the YAML config file when present and applies
// WHATSBOT_* environment overrides on top of the defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("WHATSBOT_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("WHATSBOT_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvValue("WHATSBOT_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WHATSBOT_WEB_PORT", &cfg.Web.Port)
	setEnvIntValue("PORT", &cfg.Web.Port)
	setEnvValue("WHATSBOT_DB_TYPE", &cfg.Database.Type)
	setEnvValue("WHATSBOT_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WHATSBOT_DB_PORT", &cfg.Database.Port)
	setEnvValue("WHATSBOT_DB_NAME", &cfg.Database.Name)
	setEnvValue("WHATSBOT_DB_USER", &cfg.Database.User)
	setEnvValue("WHATSBOT_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("WHATSBOT_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvValue("WHATSBOT_BOT_WEBHOOK_BASE", &cfg.Bot.WebhookBaseURL)
	setEnvValue("WHATSBOT_BOT_ADMIN_NUMBER", &cfg.Bot.AdminNumber)

	return cfg
}

// InitDirs ensures the workdir layout exists before anything writes to it.
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.System.Workdir, 0o755)
	_ = os.MkdirAll(path.Join(c.System.Workdir, "data"), 0o755)
	_ = os.MkdirAll(path.Join(c.System.Workdir, "sessions"), 0o755)
}
