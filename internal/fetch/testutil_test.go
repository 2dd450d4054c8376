package fetch

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func writeFile(path string, b []byte) error { return os.WriteFile(path, b, 0o644) }
