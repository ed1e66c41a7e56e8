package main

import (
	"os"

	"OctaMuse/cmd"
	"OctaMuse/logger"
)

func main() {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(getEnv("LOG_LEVEL", "info")),
		OutputPath: getEnv("LOG_FILE", "logs/octamuse.log"),
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})

	cmd.Execute()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
