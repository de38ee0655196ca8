package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App  AppConfig
	DB   DBConfig
	JWT  JWTConfig
	HTTP HTTPConfig
	SII  SIIConfig
}

// SIIConfig configuración del motor de emisión DTE (Servicio de Impuestos Internos, Chile).
type SIIConfig struct {
	Provider         string // "simulated" = doble de pruebas, "live" = firma y envío real
	Environment      string // "cert" = Maullin (certificación), "prod" = Palena (producción)
	Store            string // "memory" o "postgres" para el libro de folios
	SenderRUT        string // RUT de la persona que envía (dueña del certificado)
	ResolutionDate   string // Fecha de resolución de autorización (YYYY-MM-DD)
	ResolutionNumber int    // Número de resolución (0 en certificación)
	SessionToken     string // Token de sesión SII vigente (cookie TOKEN)
	CertPath         string // Ruta al certificado .p12/.pfx o .pem (vacío = no se firma el sobre)
	CertKeyPath      string // Ruta a la llave privada .pem (si CertPath es solo el certificado)
	CertPassword     string // Contraseña del .p12
	StatusTimeout    time.Duration
	SimulatedFolio   int64 // Folio fijo que devuelve el proveedor simulado
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SII_PROVIDER, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "dte-api"),
			LogLevel: getString(v, "APP_LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "dte"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "dte-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SII: SIIConfig{
			Provider:         strings.ToLower(getString(v, "SII_PROVIDER", "simulated")),
			Environment:      strings.ToLower(getString(v, "SII_ENVIRONMENT", "cert")),
			Store:            strings.ToLower(getString(v, "SII_STORE", "memory")),
			SenderRUT:        getString(v, "SII_SENDER_RUT", ""),
			ResolutionDate:   getString(v, "SII_RESOLUTION_DATE", ""),
			ResolutionNumber: getInt(v, "SII_RESOLUTION_NUMBER", 0),
			SessionToken:     getString(v, "SII_SESSION_TOKEN", ""),
			CertPath:         getString(v, "SII_CERT_PATH", ""),
			CertKeyPath:      getString(v, "SII_CERT_KEY_PATH", ""),
			CertPassword:     getString(v, "SII_CERT_PASSWORD", ""),
			StatusTimeout:    time.Duration(getInt(v, "SII_STATUS_TIMEOUT_SECONDS", 30)) * time.Second,
			SimulatedFolio:   int64(getInt(v, "SII_SIMULATED_FOLIO", 1)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SII.Provider {
	case "simulated", "live":
	default:
		return fmt.Errorf("config: SII_PROVIDER desconocido %q (usar simulated|live)", c.SII.Provider)
	}
	switch c.SII.Environment {
	case "cert", "prod":
	default:
		return fmt.Errorf("config: SII_ENVIRONMENT desconocido %q (usar cert|prod)", c.SII.Environment)
	}
	switch c.SII.Store {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: SII_STORE desconocido %q (usar memory|postgres)", c.SII.Store)
	}
	if c.SII.Provider == "live" && c.SII.SenderRUT == "" {
		return fmt.Errorf("config: SII_SENDER_RUT es obligatorio con SII_PROVIDER=live")
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
