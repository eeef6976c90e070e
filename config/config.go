package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig      RedisStorageConfig
	HttpPort         int
	StorageType      StorageType
	RunnerCapacity   int
	RunnerPoolSize   int
	SweepIntervalMs  int
	BatchSize        int
	RetryBackoff     BackoffConfig
	StepCeiling      int
	LogLevel         string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type BackoffConfig struct {
	BaseSeconds int
	MaxSeconds  int
}
