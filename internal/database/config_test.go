package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDriver_Valid(t *testing.T) {
	for _, d := range Drivers {
		assert.True(t, d.Valid(), d)
	}
	assert.False(t, Driver("sqlite").Valid())
	assert.False(t, Driver("").Valid())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(DriverPostgres)

	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, int32(15), cfg.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestConfig_DatabaseOrDefault(t *testing.T) {
	tests := []struct {
		driver Driver
		want   string
	}{
		{DriverPostgres, "postgres"},
		{DriverMSSQL, "master"},
		{DriverOracle, "XE"},
		{DriverMySQL, ""},
	}
	for _, tt := range tests {
		cfg := &Config{Driver: tt.driver}
		assert.Equal(t, tt.want, cfg.DatabaseOrDefault(), tt.driver)
	}

	cfg := &Config{Driver: DriverPostgres, Database: "app"}
	assert.Equal(t, "app", cfg.DatabaseOrDefault())
}

func TestConfig_Address(t *testing.T) {
	assert.Equal(t, "db:3306", (&Config{Driver: DriverMySQL, Host: "db"}).Address())
	assert.Equal(t, "db:6000", (&Config{Driver: DriverMySQL, Host: "db", Port: 6000}).Address())
	assert.Equal(t, "[::1]:5432", (&Config{Driver: DriverPostgres, Host: "::1"}).Address())
}

func TestColumnInfo_TypeName(t *testing.T) {
	n := int64(64)
	zero := int64(-1)

	assert.Equal(t, "varchar(64)", ColumnInfo{DataType: "VARCHAR", MaxLength: &n}.TypeName())
	assert.Equal(t, "nvarchar", ColumnInfo{DataType: "nvarchar", MaxLength: &zero}.TypeName())
	assert.Equal(t, "integer", ColumnInfo{DataType: "integer"}.TypeName())
	assert.Equal(t, "unknown", ColumnInfo{}.TypeName())
}

func TestPingQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM DUAL", PingQuery(DriverOracle))
	assert.Equal(t, "SELECT 1", PingQuery(DriverPostgres))
}
