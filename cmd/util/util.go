package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps help text at Wrap characters so long flag descriptions
// stay readable in narrow terminals.
func WrapString(text string) string {
	var sb strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		switch {
		case i == 0:
			// first word starts the first line
		case lineLen+1+len(word) > Wrap:
			sb.WriteByte('\n')
			lineLen = 0
		default:
			sb.WriteByte(' ')
			lineLen++
		}
		sb.WriteString(word)
		lineLen += len(word)
	}
	return sb.String()
}

// LoadEnv loads configuration from .env files into the environment so
// viper can pick it up. Missing files are fine.
func LoadEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// SetupLogging configures the global logrus logger from the "log-level"
// setting (debug, info, warn, error).
func SetupLogging() {
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
