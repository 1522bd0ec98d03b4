package store

import (
	"os"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/errs"
	"go.yaml.in/yaml/v3"
)

// profilesFile is the on-disk shape of a connections file:
//
//	connections:
//	  - name: local-pg
//	    db_type: postgres
//	    host: localhost
//	    username: postgres
//	    password: secret
type profilesFile struct {
	Connections []connection.Profile `yaml:"connections"`
}

// LoadProfilesFile reads connection profiles from a YAML file. A missing
// port is filled with the engine's default.
func LoadProfilesFile(path string) ([]connection.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "connections file not found: "+path, err)
		}
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to read connections file", err)
	}

	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse connections file", err)
	}

	for i := range f.Connections {
		p := &f.Connections[i]
		if p.Port == 0 {
			p.Port = p.DBType.DefaultPort()
		}
	}
	return f.Connections, nil
}
