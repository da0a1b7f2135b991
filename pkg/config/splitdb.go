package config

type SplitDB struct {
	Version      string       `yaml:"version"`
	AdminServer  AdminServer  `yaml:"admin_server"`
	Log          Log          `yaml:"log"`
	ConfigCenter ConfigCenter `yaml:"config_center"`
	Router       Router       `yaml:"router"`
}

type AdminServer struct {
	Enable          bool   `yaml:"enable"`
	Addr            string `yaml:"addr"`
	MaxConnections  int    `yaml:"max_connections"`
	EnableBasicAuth bool   `yaml:"enable_basic_auth"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
}

type Log struct {
	Level   string  `yaml:"level"`
	Format  string  `yaml:"format"`
	LogFile LogFile `yaml:"log_file"`
}

type LogFile struct {
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxDays    int    `yaml:"max_days"`
	MaxBackups int    `yaml:"max_backups"`
}

type ConfigCenter struct {
	Type       string     `yaml:"type"`
	ConfigFile ConfigFile `yaml:"config_file"`
	ConfigEtcd ConfigEtcd `yaml:"config_etcd"`
}

type ConfigFile struct {
	Path string `yaml:"path"`
}

type ConfigEtcd struct {
	Addrs       []string `yaml:"addrs"`
	BasePath    string   `yaml:"base_path"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	StrictParse bool     `yaml:"strict_parse"`
}

// Router holds the per-process defaults applied to every Adapter.
type Router struct {
	// CaseFolding is one of "natural", "lower" or "upper".
	CaseFolding string `yaml:"case_folding"`
	// LogAllQueries logs every statement at debug level.
	LogAllQueries bool `yaml:"log_all_queries"`
	// LogQueryTime is the slow statement threshold in seconds, 0 disables it.
	LogQueryTime float64 `yaml:"log_query_time"`
}
