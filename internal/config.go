package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	BufferSize      int           `env:"BUFFER_SIZE,required=true"`
	QueueSize       int           `env:"QUEUE_SIZE,required=true"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,required=true"`
	BannedWords     string        `env:"BANNED_WORDS"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,required=true"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`

	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT,required=true"`
	ResolutionDelay   time.Duration `env:"RESOLUTION_DELAY,required=true"`
	AutoLoopMin       time.Duration `env:"AUTO_LOOP_MIN"`
	AutoLoopMax       time.Duration `env:"AUTO_LOOP_MAX"`
	MaxChain          int           `env:"MAX_CHAIN"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	DebugPort      int    `env:"DEBUG_PORT"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// Words splits the comma-separated banned word list, dropping blanks.
func (c Config) Words() []string {
	var out []string
	for _, w := range strings.Split(c.BannedWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}
