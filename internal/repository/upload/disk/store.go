package disk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/scenesync/server/internal/repository/upload"
)

// AllowedTypes maps accepted video mime types to the extension used on disk.
var AllowedTypes = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/x-msvideo":  ".avi",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/ogg":        ".ogg",
}

const sniffLen = 3072

type Config struct {
	Dir        string
	PublicPath string
	MaxSize    int64
}

type store struct {
	dir        string
	publicPath string
	maxSize    int64
	now        func() time.Time
	logger     *slog.Logger
}

func NewStore(cfg *Config, logger *slog.Logger) (*store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	return &store{
		dir:        cfg.Dir,
		publicPath: strings.TrimSuffix(cfg.PublicPath, "/"),
		maxSize:    cfg.MaxSize,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Store sniffs the content type of r, rejects anything outside AllowedTypes or above the size
// limit, and writes the rest to a fresh file.
func (s store) Store(ctx context.Context, r io.Reader, filename string) (upload.StoredFile, error) {
	s.logger.DebugContext(ctx, "called", "filename", filename)

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return upload.StoredFile{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(head) == 0 {
		return upload.StoredFile{}, upload.ErrEmpty
	}

	mtype := mimetype.Detect(head)
	ext, ok := s.allowedExtension(mtype)
	if !ok {
		s.logger.DebugContext(ctx, "rejected upload", "mime_type", mtype.String())
		return upload.StoredFile{}, fmt.Errorf("%w: %s", upload.ErrUnsupportedType, mtype.String())
	}

	name := fmt.Sprintf("video-%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	dst := filepath.Join(s.dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return upload.StoredFile{}, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(br, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > s.maxSize {
		err = upload.ErrTooLarge
	}
	if err != nil {
		os.Remove(dst)
		if errors.Is(err, upload.ErrTooLarge) {
			return upload.StoredFile{}, err
		}
		return upload.StoredFile{}, fmt.Errorf("failed to write file: %w", err)
	}

	return upload.StoredFile{
		Url:      path.Join(s.publicPath, name),
		Name:     name,
		Size:     size,
		MimeType: mtype.String(),
	}, nil
}

func (s store) allowedExtension(mtype *mimetype.MIME) (string, bool) {
	for m := mtype; m != nil; m = m.Parent() {
		if ext, ok := AllowedTypes[m.String()]; ok {
			return ext, true
		}
	}
	return "", false
}
