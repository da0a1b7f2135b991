package config

import "github.com/goccy/go-yaml"

func UnmarshalSplitDBConfig(data []byte) (*SplitDB, error) {
	var cfg SplitDB
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MarshalSplitDBConfig(cfg *SplitDB) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func UnmarshalDeploymentConfig(data []byte) (*Deployment, error) {
	var cfg Deployment
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MarshalDeploymentConfig(cfg *Deployment) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func UnmarshalConnectionConfig(data []byte) (*Connection, error) {
	var cfg Connection
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MarshalConnectionConfig(cfg *Connection) ([]byte, error) {
	return yaml.Marshal(cfg)
}
