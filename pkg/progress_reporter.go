package pkg

import (
	"io"
	"time"

	"github.com/cheggaaa/pb"
)

const progressBarRecheckTime = 1 * time.Second

// NewByteProgress creates a byte-unit progress bar, or nil when output is not wanted
func NewByteProgress(total int64, prefix string) *pb.ProgressBar {
	if total <= 0 || !VerboseMode {
		return nil
	}

	bar := pb.New64(total)
	bar.SetUnits(pb.U_BYTES)
	bar.Prefix(prefix + " ")
	bar.Output = Log.Out
	return bar
}

// ProgressReader wraps reader so that reads advance the bar. A nil bar returns reader unchanged.
func ProgressReader(bar *pb.ProgressBar, reader io.Reader) io.Reader {
	if bar == nil {
		return reader
	}
	bar.Start()
	return bar.NewProxyReader(reader)
}

// FinishProgress ends a bar created by NewByteProgress
func FinishProgress(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}

// ReportProgressOnFileSize prints the size of a growing file in relation to what the expected size is.
// It returns a function that stops the reporting and waits for it to end.
func ReportProgressOnFileSize(location string, expectedSize int64) func() {
	bar := NewByteProgress(expectedSize, location)
	if bar == nil {
		return func() {}
	}

	bar.Start()
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(progressBarRecheckTime)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if size, err := FileOrDirSize(location); err == nil {
					bar.Set64(size)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		bar.Finish()
	}
}
