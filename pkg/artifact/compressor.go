package artifact

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/klauspost/compress/gzip"
)

const ioBufferSize = 1 << 20

// Compress streams src through gzip at maximum compression into dst and returns the size of dst.
// On failure dst may be left partially written.
func Compress(src string, dst string) (int64, error) {
	name := filepath.Base(dst)

	input, err := os.Open(src)
	if err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not open dump", err)
	}
	defer input.Close()

	var inputSize int64
	if stat, statErr := input.Stat(); statErr == nil {
		inputSize = stat.Size()
	}

	output, err := os.Create(dst)
	if err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not create compressed file", err)
	}
	defer output.Close()

	buffered := bufio.NewWriterSize(output, ioBufferSize)

	// A zero header (no name, no mtime) keeps the output identical for identical input
	compressor, err := gzip.NewWriterLevel(buffered, gzip.BestCompression)
	if err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not create gzip writer", err)
	}

	bar := pkg.NewByteProgress(inputSize, "compress")
	reader := pkg.ProgressReader(bar, bufio.NewReaderSize(input, ioBufferSize))
	_, err = io.Copy(compressor, reader)
	pkg.FinishProgress(bar)
	if err != nil {
		compressor.Close()
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not compress dump", err)
	}

	if err = compressor.Close(); err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not finish gzip stream", err)
	}

	if err = buffered.Flush(); err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not flush compressed file", err)
	}

	if err = output.Close(); err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not close compressed file", err)
	}

	stat, err := os.Stat(dst)
	if err != nil {
		return 0, pkg.NewFileError(pkg.KindCompressionFailed, name, "could not stat compressed file", err)
	}

	pkg.Log.WithField("file", name).Debugf("Compressed %d bytes into %d bytes", inputSize, stat.Size())

	return stat.Size(), nil
}

// Decompress streams the gzip file src into dst
func Decompress(src string, dst string) error {
	input, err := os.Open(src)
	if err != nil {
		return err
	}
	defer input.Close()

	return decompressReader(input, dst)
}

// decompressReader gunzips input into dst. dst is removed again when the stream is not valid gzip.
func decompressReader(input io.Reader, dst string) (err error) {
	reader, err := gzip.NewReader(bufio.NewReaderSize(input, ioBufferSize))
	if err != nil {
		return err
	}
	defer reader.Close()

	output, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		output.Close()
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(output, reader); err != nil {
		return err
	}

	return output.Close()
}
