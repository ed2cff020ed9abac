// Package logutil creates a Multi writer instance that
// write all logs that are written to stdout.
package logutil

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/roughtime"
)

// ConfigurePersistentLogging adds a log-to-file writer. File content is identical to stdout.
func ConfigurePersistentLogging(logFileName string) error {
	logrus.WithField("logFileName", logFileName).Info("Logs will be made persistent")
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	mw := io.MultiWriter(os.Stdout, f)
	logrus.SetOutput(mw)

	logrus.Info("File logging initialized")
	return nil
}

// CountdownToEpochBoundary prints a one-line banner every second until
// boundary is reached, so an operator starting the sidecar mid-epoch can see
// when the first reshuffle will fire.
func CountdownToEpochBoundary(boundary time.Time) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-time.NewTimer(boundary.Sub(roughtime.Now()) + 1).C:
			fmt.Println("epoch boundary reached")
			return
		case <-ticker.C:
			remaining := boundary.Sub(roughtime.Now())
			if remaining < 0 {
				remaining = 0
			}
			fmt.Printf("%s until next epoch boundary\n", remaining.Round(time.Second))
		}
	}
}
