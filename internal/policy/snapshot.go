package policy

import (
	"fmt"

	"github.com/spf13/viper"
)

type snapshotFile struct {
	Policies []StoredPolicy `mapstructure:"policies"`
}

// LoadSnapshot reads a captured set of stored policies from a YAML file.
// Snapshots are taken out-of-band from the database and checked offline.
func LoadSnapshot(path string) ([]StoredPolicy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading policy snapshot: %w", err)
	}

	var file snapshotFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("error unmarshaling policy snapshot: %w", err)
	}

	return file.Policies, nil
}
