package config

const (
	DefaultConnectionName  = "default"
	ReadOnlyConnectionName = "readonly"
)

// Deployment mirrors the "db" section of an application deployment file.
type Deployment struct {
	DB DB `yaml:"db"`
}

type DB struct {
	TablePrefix string                 `yaml:"table_prefix"`
	Connection  map[string]*Connection `yaml:"connection"`
}

// Connection is one named connection profile as written by operators.
// Host may carry a port ("db:3306") or be a unix socket path.
type Connection struct {
	Host             string            `yaml:"host"`
	Port             int               `yaml:"port"`
	Username         string            `yaml:"username"`
	Password         string            `yaml:"password"`
	DBName           string            `yaml:"dbname"`
	Charset          string            `yaml:"charset"`
	Driver           string            `yaml:"driver"`
	InitStatements   string            `yaml:"initStatements"`
	Persistent       bool              `yaml:"persistent"`
	UseBufferedQuery *bool             `yaml:"use_buffered_query"`
	DriverOptions    map[string]string `yaml:"driver_options"`
}
