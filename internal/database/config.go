package database

import (
	"net"
	"strconv"
	"time"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverOracle   Driver = "oracle"
	DriverMSSQL    Driver = "mssql"
)

// Drivers lists every engine dbconnector knows how to talk to.
var Drivers = []Driver{DriverMySQL, DriverPostgres, DriverOracle, DriverMSSQL}

// Valid reports whether d is one of Drivers.
func (d Driver) Valid() bool {
	for _, known := range Drivers {
		if d == known {
			return true
		}
	}
	return false
}

// DefaultPort returns the well-known server port for the engine.
func (d Driver) DefaultPort() int {
	switch d {
	case DriverMySQL:
		return 3306
	case DriverPostgres:
		return 5432
	case DriverOracle:
		return 1521
	case DriverMSSQL:
		return 1433
	default:
		return 0
	}
}

// Config holds all settings needed to connect to and pool a database.
type Config struct {
	// Driver is the database engine (e.g. DriverPostgres).
	Driver Driver

	Host     string
	Port     int
	User     string
	Password string

	// Database is the database (Oracle: service name) to open.
	// Empty means the engine default, see DatabaseOrDefault.
	Database string

	// SSLMode is passed to Postgres as sslmode; other engines ignore it.
	SSLMode string

	// Pool tuning
	MaxConns        int32         // maximum number of connections in the pool
	MinConns        int32         // minimum number of idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	// ConnectTimeout bounds establishing a connection and the initial ping.
	ConnectTimeout time.Duration
}

// DefaultConfig returns pool settings sized for an interactive admin tool:
// a handful of connections per registered server.
func DefaultConfig(driver Driver) *Config {
	return &Config{
		Driver:          driver,
		Port:            driver.DefaultPort(),
		MaxConns:        15,
		MinConns:        0,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// DatabaseOrDefault returns the configured database name, or the name the
// engine opens when none is given.
func (c *Config) DatabaseOrDefault() string {
	if c.Database != "" {
		return c.Database
	}
	switch c.Driver {
	case DriverPostgres:
		return "postgres"
	case DriverMSSQL:
		return "master"
	case DriverOracle:
		return "XE"
	default:
		return ""
	}
}

// PortOrDefault returns the configured port or the engine's default port.
func (c *Config) PortOrDefault() int {
	if c.Port > 0 {
		return c.Port
	}
	return c.Driver.DefaultPort()
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.PortOrDefault()))
}
