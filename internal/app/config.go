package app

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// EnvFile is the local configuration file read before the environment.
const EnvFile = ".env"

// EnvKey is a variable the provisioner reads, with an example value for
// the missing-file warning.
type EnvKey struct {
	Name    string
	Example string
}

// EnvKeys lists the connection variables documented in the warning.
var EnvKeys = []EnvKey{
	{Name: "DB_HOST", Example: "127.0.0.1"},
	{Name: "DB_USER", Example: "root"},
	{Name: "DB_PASSWORD", Example: "your_password"},
	{Name: "DB_NAME", Example: "jobspark"},
}

// Config holds the provisioner configuration, loadable from environment
// variables, flags, or a YAML config file.
type Config struct {
	Host     string `env:"DB_HOST" flag:"db-host" yaml:"db_host" default:"127.0.0.1" usage:"MySQL server host"`
	Port     int    `env:"DB_PORT" flag:"db-port" yaml:"db_port" default:"3306" usage:"MySQL server port"`
	User     string `env:"DB_USER" flag:"db-user" yaml:"db_user" default:"root" usage:"MySQL user"`
	Password string `env:"DB_PASSWORD" flag:"db-password" yaml:"db_password" default:"" usage:"MySQL password"`
	Name     string `env:"DB_NAME" flag:"db-name" yaml:"db_name" default:"jobspark" usage:"Database the dump is applied to"`
	DumpFile string `env:"DUMP_FILE" flag:"dump" yaml:"dump_file" default:"jobspark.sql" usage:"SQL dump path, relative paths are resolved beside the executable"`
	Split    bool   `env:"DUMP_SPLIT" flag:"split" yaml:"split" default:"false" usage:"Execute the dump statement by statement"`
	Embedded bool   `env:"DUMP_EMBEDDED" flag:"embedded" yaml:"embedded" default:"false" usage:"Apply the dump compiled into the binary instead of a file"`
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// environment variables and the given command-line arguments.
func LoadConfig(args []string) (*Config, error) {
	if args == nil {
		args = []string{}
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:  args,
		Files: []string{"provision.yaml", "/etc/hirespark/provision.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Host == "" {
		return errors.New("database host is required: set DB_HOST")
	}
	if c.Name == "" {
		return errors.New("database name is required: set DB_NAME")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("invalid DB_PORT %d", c.Port)
	}
	if !c.Embedded && c.DumpFile == "" {
		return errors.New("dump file is required: set DUMP_FILE or use --embedded")
	}
	return nil
}

// Addr returns the host:port pair of the server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Target describes the connection for progress output. The password is
// never included.
func (c *Config) Target() string {
	return c.User + "@" + c.Addr()
}

// MySQL returns the driver configuration with multi-statement execution
// enabled.
func (c *Config) MySQL() *mysql.Config {
	m := mysql.NewConfig()
	m.User = c.User
	m.Passwd = c.Password
	m.Net = "tcp"
	m.Addr = c.Addr()
	m.DBName = c.Name
	m.MultiStatements = true
	m.ParseTime = true
	return m
}

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. It reports whether the file exists; a
// missing file is not an error.
func LoadEnvFile(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return true, errors.Wrapf(err, "load %s", path)
	}
	return true, nil
}

// WriteEnvWarning tells the user that path is missing and which keys it
// should define. Execution continues with defaults.
func WriteEnvWarning(w io.Writer, path string) {
	_, _ = fmt.Fprintf(w, "Warning: %s file not found.\n", path)
	_, _ = fmt.Fprintf(w, "Create it with the following keys (example values):\n")
	for _, k := range EnvKeys {
		_, _ = fmt.Fprintf(w, "  %s=%s\n", k.Name, k.Example)
	}
	_, _ = fmt.Fprintf(w, "Falling back to defaults.\n\n")
}
