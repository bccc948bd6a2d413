package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	DatabasePath string
	LogDirectory string

	StreamName        string
	Transport         string // "websocket" or "mqtt"
	IngestEndpoint    string
	MQTTBroker        string
	MQTTTopicPrefix   string
	MQTTQoS           int
	PartitionStrategy string // "fixed" or "round-robin"
	PartitionCount    int

	BatchLimit         int
	BatchFlushInterval time.Duration
	ProcessingWorkers  int

	CaptureMode      string // "stride", "signal" or "watch"
	CaptureStride    int
	SimulationSteps  int
	SimulationSpeed  float64
	CaptureDirectory string
	WatchDirectory   string
	WatchInterval    time.Duration

	CalibrationPath string
}

// Load reads the configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DatabasePath: getEnv("DB_PATH", filepath.Join(".", "data", "traffic.db")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		StreamName:        getEnv("STREAM_NAME", "TrafficDataStream"),
		Transport:         getEnv("TRANSPORT", "websocket"),
		IngestEndpoint:    getEnv("INGEST_ENDPOINT", "ws://localhost:8080/api/ingest"),
		MQTTBroker:        getEnv("MQTT_BROKER", "localhost:1883"),
		MQTTTopicPrefix:   getEnv("MQTT_TOPIC_PREFIX", "traffic"),
		MQTTQoS:           getEnvAsInt("MQTT_QOS", 1),
		PartitionStrategy: getEnv("PARTITION_STRATEGY", "fixed"),
		PartitionCount:    getEnvAsInt("PARTITION_COUNT", 4),

		BatchLimit:         getEnvAsInt("BATCH_LIMIT", 10),
		BatchFlushInterval: getEnvAsDuration("BATCH_FLUSH_INTERVAL", 5*time.Second),
		ProcessingWorkers:  getEnvAsInt("PROCESSING_WORKERS", 3),

		CaptureMode:      getEnv("CAPTURE_MODE", "signal"),
		CaptureStride:    getEnvAsInt("CAPTURE_STRIDE", 5),
		SimulationSteps:  getEnvAsInt("SIMULATION_STEPS", 3600),
		SimulationSpeed:  getEnvAsFloat("SIMULATION_SPEED", 5.0), // 1.0 = real time
		CaptureDirectory: getEnv("CAPTURE_DIR", filepath.Join(".", "red_light_captures")),
		WatchDirectory:   getEnv("WATCH_DIR", filepath.Join(".", "screenshots")),
		WatchInterval:    getEnvAsDuration("WATCH_INTERVAL", 10*time.Second),

		CalibrationPath: getEnv("CALIBRATION_PATH", ""),
	}
}

// StepInterval is the pause between two simulation steps.
func (c *Config) StepInterval() time.Duration {
	if c.SimulationSpeed <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.SimulationSpeed)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
