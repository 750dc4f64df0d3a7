package inputs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
)

// FileConfig configures the "file" input.
type FileConfig struct {
	Path string `yaml:"path"`
	// Codec selects how the file is framed: "lines" (default) emits
	// one message per newline-delimited record; "drop" is an alias of
	// the null/drop output behavior that reads and discards every line
	// without emitting a message, useful for smoke-testing that a file
	// is readable without processing it.
	Codec string `yaml:"codec"`
	// PositionFile, if set, persists "path\tbyte_offset" on every ack
	// so a restarted pipeline resumes instead of re-reading.
	PositionFile string `yaml:"position_file"`
}

// File reads newline-delimited records from a file on disk, one
// message per line, resuming from a persisted byte offset when
// PositionFile is configured.
type File struct {
	cfg FileConfig

	mu       sync.Mutex
	f        *os.File
	r        *bufio.Reader
	streamID string
	offset   int64
	eof      bool
}

// NewFile is a component.Constructor for the "file" tag.
func NewFile(cfg any, _ component.Dependencies) (any, error) {
	var fc FileConfig
	if err := config.DecodeInto(cfg, &fc); err != nil {
		return nil, &component.ConfigError{Component: "file", Cause: err}
	}
	if fc.Path == "" {
		return nil, &component.ConfigError{Component: "file", Cause: fmt.Errorf("path must not be empty")}
	}
	if fc.Codec == "" {
		fc.Codec = "lines"
	}
	if fc.Codec != "lines" && fc.Codec != "drop" {
		return nil, &component.ConfigError{Component: "file", Cause: fmt.Errorf("unsupported codec %q", fc.Codec)}
	}
	return &File{cfg: fc}, nil
}

func (fl *File) Open(ctx context.Context) error {
	f, err := os.Open(fl.cfg.Path)
	if err != nil {
		return &component.ConnectError{Component: "file", Cause: err}
	}
	fl.f = f
	fl.streamID = uuid.NewString()

	if fl.cfg.PositionFile != "" {
		if offset, ok := readPersistedOffset(fl.cfg.PositionFile, fl.cfg.Path); ok {
			if _, err := f.Seek(offset, 0); err != nil {
				return &component.ConnectError{Component: "file", Cause: err}
			}
			fl.offset = offset
		}
	}
	fl.r = bufio.NewReader(f)
	return nil
}

func (fl *File) Read(ctx context.Context) (*message.Message, message.AckFunc, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	for {
		if fl.eof {
			return nil, nil, context.Canceled
		}
		line, err := fl.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			fl.eof = true
			eos := message.NewEndOfStream(fl.streamID)
			return eos, noopAck, nil
		}
		consumed := int64(len(line))
		trimmed := strings.TrimSuffix(string(line), "\n")
		newOffset := fl.offset + consumed

		if fl.cfg.Codec == "drop" {
			fl.offset = newOffset
			fl.persist()
			if err != nil {
				fl.eof = true
			}
			continue
		}

		msg := message.New([]byte(trimmed))
		msg.SetStreamID(fl.streamID)
		ackedOffset := newOffset
		ackFn := func(_ context.Context, ackErr error) error {
			if ackErr == nil {
				fl.mu.Lock()
				fl.offset = ackedOffset
				fl.persist()
				fl.mu.Unlock()
			}
			return nil
		}
		if err != nil {
			fl.eof = true
		}
		return msg, ackFn, nil
	}
}

func (fl *File) persist() {
	if fl.cfg.PositionFile == "" {
		return
	}
	line := fmt.Sprintf("%s\t%d\n", fl.cfg.Path, fl.offset)
	_ = os.WriteFile(fl.cfg.PositionFile, []byte(line), 0o644)
}

func readPersistedOffset(positionFile, path string) (int64, bool) {
	raw, err := os.ReadFile(positionFile)
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(raw), "\n") {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 || parts[0] != path {
			continue
		}
		offset, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return 0, false
		}
		return offset, true
	}
	return 0, false
}

func (fl *File) Close(ctx context.Context) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.f == nil {
		return nil
	}
	return fl.f.Close()
}
