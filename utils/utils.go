package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

func AddToLogMessage(logMessagesBuilder *strings.Builder, strToAdd string) {

	if logMessagesBuilder.Len() == logMessagesBuilder.Cap() {

		logMessagesBuilder.Grow(len(strToAdd))
	}

	logMessagesBuilder.WriteString(strToAdd)
	logMessagesBuilder.WriteString(";")
	logMessagesBuilder.WriteString("\n")
}

// FlushLogMessage writes the accumulated request log as a single entry.
func FlushLogMessage(logger zerolog.Logger, logMessagesBuilder *strings.Builder) {
	if logMessagesBuilder.Len() == 0 {
		return
	}
	logger.Info().Msg(strings.TrimSuffix(logMessagesBuilder.String(), "\n"))
}
