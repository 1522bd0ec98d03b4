package connection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Validate(t *testing.T) {
	valid := Profile{
		Name:     "local",
		DBType:   database.DriverMySQL,
		Host:     "localhost",
		Port:     3306,
		Username: "root",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantMsg string
	}{
		{"missing name", func(p *Profile) { p.Name = "" }, "Field: name, Tag: required"},
		{"bad type", func(p *Profile) { p.DBType = "sqlite" }, "Field: db_type, Tag: oneof"},
		{"port too high", func(p *Profile) { p.Port = 70000 }, "Field: port, Tag: max"},
		{"missing host", func(p *Profile) { p.Host = "" }, "Field: host, Tag: required"},
		{"missing user", func(p *Profile) { p.Username = "" }, "Field: username, Tag: required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestProfile_JSON(t *testing.T) {
	var p Profile
	body := `{"name":"pg","db_type":"postgres","host":"h","port":5432,"username":"u","password":"p"}`
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	assert.Equal(t, database.DriverPostgres, p.DBType)
	assert.Empty(t, p.ID)

	out, err := json.Marshal(p.Masked())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"pg","db_type":"postgres","host":"h","port":5432,"username":"u","password":"***"}`, string(out))
}

func TestProfile_DatabaseConfig(t *testing.T) {
	p := Profile{DBType: database.DriverMSSQL, Host: "sql", Port: 1444, Username: "sa", Password: "pw"}

	cfg := p.DatabaseConfig(3 * time.Second)
	assert.Equal(t, database.DriverMSSQL, cfg.Driver)
	assert.Equal(t, "sql:1444", cfg.Address())
	assert.Equal(t, "master", cfg.DatabaseOrDefault())
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)

	cfg = p.DatabaseConfig(0)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}
